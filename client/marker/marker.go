package marker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNotFound indicates that no marker exists for the address
var ErrNotFound = errors.New("verification marker not found")

// Marker records that this client session already completed signature
// verification for Address. It is a cache, never a source of authorization.
type Marker struct {
	Address      string    `json:"address"`
	VerifiedAt   time.Time `json:"verified_at"`
	RefreshToken string    `json:"refresh_token"`
}

// Store keeps markers per lowercase address
type Store interface {
	// Get returns ErrNotFound if no marker exists for address
	Get(ctx context.Context, address string) (*Marker, error)
	// Put replaces the marker of m.Address
	Put(ctx context.Context, m *Marker) error
	// Delete removes the marker of address. A missing marker is not an error.
	Delete(ctx context.Context, address string) error
}

// Key normalizes an address into a store key
func Key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// MemoryStore keeps markers for the lifetime of the process, like a tab-scoped cache
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[string]Marker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: make(map[string]Marker)}
}

func (s *MemoryStore) Get(ctx context.Context, address string) (*Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markers[Key(address)]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Put(ctx context.Context, m *Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers[Key(m.Address)] = *m
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.markers, Key(address))
	return nil
}

// Len returns the number of stored markers
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}
