package authfsm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/layer-3/dropgate/client/marker"
	"github.com/layer-3/dropgate/client/wallet"
	"github.com/layer-3/dropgate/core"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxSelfHeals = 1
)

var (
	ErrClosed          = errors.New("state machine closed")
	ErrRetryNotAllowed = errors.New("retry is only allowed after a failed verification")
)

// Backend is the server side of the sign-in flow
type Backend interface {
	Verify(ctx context.Context, req core.VerifyRequest) (*core.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*core.Grant, error)
	FetchProfile(ctx context.Context, accessToken string) (*core.Profile, error)
}

type Option func(*Machine)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func WithNotifier(fn NotifyFunc) Option {
	return func(m *Machine) { m.notify = fn }
}

// WithTimeout bounds each signing and network step
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithMaxSelfHeals caps automatic re-verification after a failed restore
func WithMaxSelfHeals(n int) Option {
	return func(m *Machine) { m.maxSelfHeals = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine drives one wallet connection through verification.
// Commands start work in the background; state is read through Snapshot and Watch.
type Machine struct {
	backend      Backend
	markers      marker.Store
	builder      *core.Builder
	logger       *zap.Logger
	notify       NotifyFunc
	timeout      time.Duration
	maxSelfHeals int
	now          func() time.Time

	mu       sync.Mutex
	state    State
	wallet   wallet.Wallet
	address  string
	epoch    uint64
	inFlight bool
	cancel   context.CancelFunc
	heals    int
	grant    *core.Grant
	profile  *core.Profile
	prompt   bool
	restored bool
	lastErr  error
	changed  chan struct{}
	closed   bool

	wg sync.WaitGroup
}

func New(backend Backend, markers marker.Store, builder *core.Builder, opts ...Option) *Machine {
	m := &Machine{
		backend:      backend,
		markers:      markers,
		builder:      builder,
		logger:       zap.NewNop(),
		timeout:      DefaultTimeout,
		maxSelfHeals: DefaultMaxSelfHeals,
		now:          time.Now,
		changed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect attaches a wallet and starts verification for its address.
// Connecting the address that is already connected does nothing.
func (m *Machine) Connect(w wallet.Wallet) error {
	address, err := core.NormalizeAddress(w.Address())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != Disconnected && m.address == address {
		return nil
	}

	if m.state != Disconnected {
		m.logger.Info("wallet address changed", zap.String("from", m.address), zap.String("to", address))
	}

	m.resetLocked()
	m.wallet = w
	m.address = address
	m.setStateLocked(PendingVerification)
	m.startLocked()

	return nil
}

// Disconnect cancels any attempt and clears the session. The marker stays in storage.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Disconnected {
		return
	}

	m.logger.Info("wallet disconnected", zap.String("address", m.address), zap.Stringer("from", m.state))
	m.resetLocked()
	m.setStateLocked(Disconnected)
}

// Retry starts a new attempt after VerificationFailed
func (m *Machine) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != VerificationFailed {
		return ErrRetryNotAllowed
	}
	if m.inFlight {
		return nil
	}

	m.lastErr = nil
	m.setStateLocked(PendingVerification)
	m.startLocked()

	return nil
}

// AcknowledgeUsernamePrompt clears the "choose a name" prompt
func (m *Machine) AcknowledgeUsernamePrompt() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prompt {
		m.prompt = false
		m.broadcastLocked()
	}
}

// Snapshot returns a copy of the current state
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Watch blocks until pred holds for a snapshot or ctx ends
func (m *Machine) Watch(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap := m.snapshotLocked()
		changed := m.changed
		m.mu.Unlock()

		if pred(snap) {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

// Close cancels any attempt and waits for background work to stop
func (m *Machine) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.resetLocked()
		m.setStateLocked(Disconnected)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          m.state,
		Address:        m.address,
		PromptUsername: m.prompt,
		Restored:       m.restored,
		Err:            m.lastErr,
	}
	if m.grant != nil {
		snap.AccessToken = m.grant.AccessToken
		snap.RefreshToken = m.grant.RefreshToken
		snap.AccessExpiry = m.grant.AccessExpiry
	}
	if m.profile != nil {
		p := *m.profile
		snap.Profile = &p
	}
	return snap
}

// resetLocked abandons the running attempt and forgets the session.
// Results of the abandoned attempt fail the isCurrentLocked check.
func (m *Machine) resetLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.epoch++
	m.inFlight = false
	m.wallet = nil
	m.address = ""
	m.heals = 0
	m.clearSessionLocked()
	m.lastErr = nil
}

func (m *Machine) clearSessionLocked() {
	m.grant = nil
	m.profile = nil
	m.prompt = false
	m.restored = false
}

func (m *Machine) setStateLocked(s State) {
	if m.state != s {
		m.logger.Debug("auth state changed", zap.String("address", m.address), zap.Stringer("from", m.state), zap.Stringer("to", s))
	}
	m.state = s
	m.broadcastLocked()
}

func (m *Machine) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Machine) isCurrentLocked(epoch uint64, address string) bool {
	return !m.closed && m.epoch == epoch && m.address == address
}

// startLocked launches one attempt. Only one attempt runs at a time.
func (m *Machine) startLocked() {
	if m.inFlight {
		return
	}

	m.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.inFlight = true

	a := &attempt{
		m:       m,
		epoch:   m.epoch,
		address: m.address,
		wallet:  m.wallet,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		a.run(ctx)
	}()
}

func (m *Machine) emit(n Notice) {
	fields := []zap.Field{zap.String("address", n.Address), zap.Error(n.Err)}
	if ce := m.logger.Check(n.Level, n.Message); ce != nil {
		ce.Write(fields...)
	}
	if m.notify != nil {
		m.notify(n)
	}
}
