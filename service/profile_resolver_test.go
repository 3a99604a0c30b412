package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/dropgate/adapters/sqlite"
	"github.com/layer-3/dropgate/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAddress = "0xabcdef0123456789abcdef0123456789abcdef01"

// scriptedStore returns queued results for GetProfileByAddress
type scriptedStore struct {
	mu        sync.Mutex
	gets      []getResult
	createErr error
	markErr   error
	marked    int
}

type getResult struct {
	profile *core.Profile
	err     error
}

func (s *scriptedStore) CreateProfile(ctx context.Context, p *core.Profile) error {
	return s.createErr
}

func (s *scriptedStore) GetProfileByAddress(ctx context.Context, address string) (*core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.gets) == 0 {
		return nil, core.ErrProfileNotFound
	}
	next := s.gets[0]
	s.gets = s.gets[1:]
	return next.profile, next.err
}

func (s *scriptedStore) MarkUsernamePrompted(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	s.marked++
	return s.marked == 1, nil
}

func newTestResolver(store *scriptedStore) *ProfileResolver {
	r := NewProfileResolver(store, zap.NewNop(), nil)
	r.backoff = time.Millisecond
	return r
}

func TestResolve_Existing(t *testing.T) {
	existing := core.NewProfile("p-1", testAddress, time.Now())
	existing.UsernameSet = true
	existing.Username = "satoshi"

	store := &scriptedStore{gets: []getResult{{profile: existing}}}
	profile, created, prompt, err := newTestResolver(store).Resolve(context.Background(), testAddress, "p-1")

	require.NoError(t, err)
	assert.Equal(t, "satoshi", profile.Username)
	assert.False(t, created)
	assert.False(t, prompt)
	assert.Zero(t, store.marked)
}

func TestResolve_Creates(t *testing.T) {
	store := &scriptedStore{}
	profile, created, prompt, err := newTestResolver(store).Resolve(context.Background(), testAddress, "p-1")

	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, prompt)
	assert.Equal(t, "p-1", profile.ID)
	assert.Equal(t, "hunter-abcdef", profile.Username)
	assert.True(t, profile.UsernamePrompted)
}

func TestResolve_Failures(t *testing.T) {
	racedProfile := core.NewProfile("p-0", testAddress, time.Now())

	tests := []struct {
		name      string
		store     *scriptedStore
		wantErr   error
		wantID    string
		wantRaces float64
	}{
		{
			name:    "lookup error",
			store:   &scriptedStore{gets: []getResult{{err: errors.New("connection reset")}}},
			wantErr: core.ErrProfileFetchFailed,
		},
		{
			name:    "create error",
			store:   &scriptedStore{createErr: errors.New("disk full")},
			wantErr: core.ErrProfileCreateFailed,
		},
		{
			name: "race resolved on second refetch",
			store: &scriptedStore{
				createErr: core.ErrProfileExists,
				gets: []getResult{
					{err: core.ErrProfileNotFound},
					{err: core.ErrProfileNotFound},
					{profile: racedProfile},
				},
			},
			wantID:    "p-0",
			wantRaces: 1,
		},
		{
			name:      "race never resolves",
			store:     &scriptedStore{createErr: core.ErrProfileExists},
			wantErr:   core.ErrProfileFetchFailed,
			wantRaces: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.store)

			profile, created, _, err := r.Resolve(context.Background(), testAddress, "p-1")
			assert.False(t, created)
			assert.Equal(t, tt.wantRaces, testutil.ToFloat64(r.metrics.profileRaces))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, profile)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, profile.ID)
		})
	}
}

func TestResolve_PromptErrorKeepsLogin(t *testing.T) {
	store := &scriptedStore{markErr: errors.New("locked")}

	profile, created, prompt, err := newTestResolver(store).Resolve(context.Background(), testAddress, "p-1")
	require.NoError(t, err)
	assert.NotNil(t, profile)
	assert.True(t, created)
	assert.False(t, prompt)
}

func TestResolve_ConcurrentCreateSingleProfile(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewProfileResolver(db, zap.NewNop(), nil)

	const workers = 16
	var (
		wg       sync.WaitGroup
		ids      sync.Map
		creates  atomic.Int32
		prompts  atomic.Int32
		failures atomic.Int32
	)
	start := make(chan struct{})

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			profile, created, prompt, err := r.Resolve(ctx, testAddress, "p-1")
			if err != nil {
				failures.Add(1)
				return
			}
			ids.Store(profile.ID, struct{}{})
			if created {
				creates.Add(1)
			}
			if prompt {
				prompts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, int32(1), creates.Load())
	assert.Equal(t, int32(1), prompts.Load())

	distinct := 0
	ids.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)

	stored, err := db.GetProfileByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "p-1", stored.ID)
}
