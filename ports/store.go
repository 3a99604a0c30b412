package ports

import (
	"context"
	"time"
)

// Store interface for token invalidation and nonce consumption
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// ClaimToken invalidates tokenID for expiry and reports whether this call
	// did it. Of concurrent claims on one id exactly one returns true.
	ClaimToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)

	// ConsumeNonce records nonce as used for ttl.
	// It returns false if the nonce was already consumed.
	ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}
