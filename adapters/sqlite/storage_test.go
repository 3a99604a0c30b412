package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/dropgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testAddress = "0xabcdef0123456789abcdef0123456789abcdef01"

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	return s, func() { _ = s.Close() }
}

func TestStorage_Principal(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	p := &core.Principal{
		ID:           uuid.New().String(),
		Login:        "wallet+" + testAddress + "@app.airdrop.example",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.GetPrincipalByLogin(ctx, p.Login)
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	require.NoError(t, s.CreatePrincipal(ctx, p))

	got, err := s.GetPrincipalByLogin(ctx, p.Login)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.PasswordHash, got.PasswordHash)

	dup := *p
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, s.CreatePrincipal(ctx, &dup), core.ErrPrincipalExists)
}

func TestStorage_Profile(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetProfileByAddress(ctx, testAddress)
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	p := core.NewProfile(uuid.New().String(), testAddress, time.Now())
	require.NoError(t, s.CreateProfile(ctx, p))

	got, err := s.GetProfileByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, core.RoleUser, got.Role)
	assert.Equal(t, core.TierHunter, got.Tier)
	assert.Equal(t, p.Username, got.Username)
	assert.Equal(t, p.AvatarURL, got.AvatarURL)
	assert.False(t, got.UsernameSet)
	assert.False(t, got.UsernamePrompted)
	assert.False(t, got.Banned)
	assert.Equal(t, 1, got.Level)
}

func TestStorage_CreateProfileDuplicate(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.CreateProfile(ctx, core.NewProfile("id-1", testAddress, time.Now())))

	tests := []struct {
		name    string
		profile *core.Profile
	}{
		{name: "same address", profile: core.NewProfile("id-2", testAddress, time.Now())},
		{name: "same id", profile: core.NewProfile("id-1", "0x0000000000000000000000000000000000000001", time.Now())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.CreateProfile(ctx, tt.profile), core.ErrProfileExists)
		})
	}
}

func TestStorage_MarkUsernamePrompted(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	p := core.NewProfile("id-1", testAddress, time.Now())
	require.NoError(t, s.CreateProfile(ctx, p))

	first, err := s.MarkUsernamePrompted(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.MarkUsernamePrompted(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, second)

	got, err := s.GetProfileByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.True(t, got.UsernamePrompted)
}

func TestNew_MigrationsLogThroughZap(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)

	s, err := New(context.Background(), ":memory:", WithLogger(zap.New(obs)))
	require.NoError(t, err)
	defer s.Close()

	migrated := logs.FilterLoggerName("migrate").All()
	require.NotEmpty(t, migrated)
	assert.Contains(t, migrated[len(migrated)-1].Message, "goose:")
}
