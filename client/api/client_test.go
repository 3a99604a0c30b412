package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/layer-3/dropgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify", r.URL.Path)
		assert.Equal(t, "pk", r.Header.Get("X-Api-Key"))

		var req core.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Address)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":    "a",
			"refresh_token":   "r",
			"token_type":      "Bearer",
			"expires_at":      time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
			"profile":         map[string]any{"id": "p-1", "address": "0xabc", "role": "user", "tier": "Hunter"},
			"prompt_username": true,
		})
	}))
	defer srv.Close()

	grant, err := New(srv.URL, "pk").Verify(context.Background(), core.VerifyRequest{Message: "m", Signature: "s", Address: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "a", grant.AccessToken)
	assert.Equal(t, "r", grant.RefreshToken)
	assert.True(t, grant.PromptUsername)
	require.NotNil(t, grant.Profile)
	assert.Equal(t, core.TierHunter, grant.Profile.Tier)
}

func TestClient_ErrorCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "invalid signature", status: http.StatusUnauthorized, body: `{"error":"invalid signature","code":"invalid_signature"}`, wantErr: core.ErrInvalidSignature},
		{name: "profile missing", status: http.StatusNotFound, body: `{"error":"profile not found","code":"profile_not_found"}`, wantErr: core.ErrProfileNotFound},
		{name: "expired", status: http.StatusUnauthorized, body: `{"error":"token has expired","code":"token_expired"}`, wantErr: core.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "").FetchProfile(context.Background(), "token")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_UnknownError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, "").Logout(context.Background(), "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Nil(t, core.ErrorFromCode(core.ErrorCode(err)))
}

func TestClient_SendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(core.Profile{ID: "p-1", Banned: true})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "").FetchProfile(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, p.Banned)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, "").Refresh(ctx, "r")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
