package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/dropgate/ports"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It is meant for single-instance deployments and tests.
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	usedNonces        map[string]time.Time
	mu                sync.Mutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		usedNonces:        make(map[string]time.Time),
		now:               now,
	}
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prune(s.invalidatedTokens, now)

	expiryTime := now.Add(expiry)
	if stored, exists := s.invalidatedTokens[tokenID]; !exists || stored.Before(expiryTime) {
		s.invalidatedTokens[tokenID] = expiryTime
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	return s.now().Before(expiryTime), nil
}

// ClaimToken invalidates a token unless it already is
func (s *MemoryStore) ClaimToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prune(s.invalidatedTokens, now)

	if _, invalidated := s.invalidatedTokens[tokenID]; invalidated {
		return false, nil
	}
	s.invalidatedTokens[tokenID] = now.Add(expiry)

	return true, nil
}

// ConsumeNonce marks a nonce as used unless it already is
func (s *MemoryStore) ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prune(s.usedNonces, now)

	if _, used := s.usedNonces[nonce]; used {
		return false, nil
	}
	s.usedNonces[nonce] = now.Add(ttl)

	return true, nil
}

// prune drops entries whose expiry has passed
func prune(m map[string]time.Time, now time.Time) {
	for k, exp := range m {
		if !now.Before(exp) {
			delete(m, k)
		}
	}
}
