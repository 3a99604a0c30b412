package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/dropgate/adapters/principal"
	"github.com/layer-3/dropgate/adapters/signature"
	"github.com/layer-3/dropgate/adapters/sqlite"
	"github.com/layer-3/dropgate/adapters/store"
	"github.com/layer-3/dropgate/adapters/tokenizer"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testOrigin  = "https://app.airdrop.example"
	testDomain  = "app.airdrop.example"
	testChainID = int64(1)
)

type recordingPublisher struct {
	mu       sync.Mutex
	verified []*core.Session
	created  []*core.Profile
	logouts  []string
	err      error
}

func (p *recordingPublisher) PublishVerified(ctx context.Context, session *core.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, session)
	return p.err
}

func (p *recordingPublisher) PublishProfileCreated(ctx context.Context, profile *core.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, profile)
	return p.err
}

func (p *recordingPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, tokenID)
	return p.err
}

type testEnv struct {
	svc     *AuthService
	db      *sqlite.Storage
	events  *recordingPublisher
	metrics *Metrics
}

type envOption func(*envConfig)

type envConfig struct {
	principals ports.PrincipalProvider
}

func withPrincipals(p ports.PrincipalProvider) envOption {
	return func(c *envConfig) { c.principals = p }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cfg := envConfig{principals: principal.NewBridge(db, "service-key", testDomain)}
	for _, opt := range opts {
		opt(&cfg)
	}

	metrics := NewMetrics(nil)
	events := &recordingPublisher{}
	logger := zap.NewNop()

	svc := NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		store.NewMemoryStore(),
		events,
		signature.NewPersonalSign(),
		cfg.principals,
		NewProfileResolver(db, logger, metrics),
		DefaultConfig(testOrigin, testChainID),
		WithLogger(logger),
		WithMetrics(metrics),
	)

	return &testEnv{svc: svc, db: db, events: events, metrics: metrics}
}

type testWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &testWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w *testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// request builds and signs a challenge issued offset from now
func (w *testWallet) request(t *testing.T, offset time.Duration) core.VerifyRequest {
	t.Helper()
	b := core.NewBuilder(testOrigin, testChainID)
	b.Now = func() time.Time { return time.Now().Add(offset) }
	msg := b.Build(w.address).Message()
	return core.VerifyRequest{Message: msg, Signature: w.sign(t, msg), Address: w.address}
}
