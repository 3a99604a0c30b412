package marker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "0xABC")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, &Marker{Address: "0xABC", VerifiedAt: time.Now(), RefreshToken: "r1"}))

	got, err := s.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefreshToken)

	// returned markers are copies
	got.RefreshToken = "mutated"
	again, err := s.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "r1", again.RefreshToken)

	require.NoError(t, s.Put(ctx, &Marker{Address: "0xabc", RefreshToken: "r2"}))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "0xAbC"))
	require.NoError(t, s.Delete(ctx, "0xAbC"))
	assert.Equal(t, 0, s.Len())
}
