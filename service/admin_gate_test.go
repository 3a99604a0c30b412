package service

import (
	"testing"
	"time"

	"github.com/layer-3/dropgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdminGate_Login(t *testing.T) {
	first, err := HashAdminPassword("correct horse")
	require.NoError(t, err)
	second, err := HashAdminPassword("battery staple")
	require.NoError(t, err)

	gate := NewAdminGate([]string{first, "", second}, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "first hash", password: "correct horse"},
		{name: "second hash", password: "battery staple"},
		{name: "wrong password", password: "tr0ub4dor", wantErr: core.ErrAdminDenied},
		{name: "empty password", password: "", wantErr: core.ErrAdminDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := gate.Login(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, grant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, now, grant.GrantedAt)
			assert.Equal(t, now.Add(core.AdminWindow), grant.ExpiresAt)
		})
	}
}

func TestAdminGate_NoHashesDeniesAll(t *testing.T) {
	_, err := NewAdminGate(nil, zap.NewNop()).Login("anything")
	assert.ErrorIs(t, err, core.ErrAdminDenied)
}
