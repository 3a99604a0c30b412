package authfsm_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dropgate/adapters/events"
	"github.com/layer-3/dropgate/adapters/principal"
	"github.com/layer-3/dropgate/adapters/signature"
	"github.com/layer-3/dropgate/adapters/sqlite"
	"github.com/layer-3/dropgate/adapters/store"
	"github.com/layer-3/dropgate/adapters/tokenizer"
	"github.com/layer-3/dropgate/client/api"
	"github.com/layer-3/dropgate/client/authfsm"
	"github.com/layer-3/dropgate/client/marker"
	"github.com/layer-3/dropgate/client/marker/boltdb"
	"github.com/layer-3/dropgate/client/wallet"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/service"
	transport "github.com/layer-3/dropgate/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testOrigin = "https://app.airdrop.example"
	testAPIKey = "public-key"
)

type backendEnv struct {
	db     *sqlite.Storage
	client *api.Client
}

func newBackend(t *testing.T) *backendEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	logger := zap.NewNop()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, events.NewZapLogger(logger))
	t.Cleanup(func() { _ = pubSub.Close() })

	domain := core.HostFromOrigin(testOrigin)
	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		store.NewMemoryStore(),
		events.NewWatermillPublisher(pubSub),
		signature.NewPersonalSign(),
		principal.NewBridge(db, "service-key", domain),
		service.NewProfileResolver(db, logger, service.NewMetrics(nil)),
		service.DefaultConfig(testOrigin, 1),
	)

	router := transport.SetupRouter(authService, service.NewAdminGate(nil, logger), transport.RouterConfig{
		APIKey: testAPIKey,
		Logger: logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &backendEnv{db: db, client: api.New(srv.URL, testAPIKey)}
}

func (e *backendEnv) profiles(t *testing.T) int {
	t.Helper()
	n, err := e.db.CountProfiles(context.Background())
	require.NoError(t, err)
	return n
}

// countingWallet counts signature requests
type countingWallet struct {
	wallet.Wallet
	signs atomic.Int32
}

func (w *countingWallet) SignMessage(ctx context.Context, msg string) (string, error) {
	w.signs.Add(1)
	return w.Wallet.SignMessage(ctx, msg)
}

func newWallet(t *testing.T) *countingWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &countingWallet{Wallet: wallet.NewKeyWallet(key)}
}

func newMachine(t *testing.T, env *backendEnv, markers marker.Store) *authfsm.Machine {
	t.Helper()
	m := authfsm.New(env.client, markers, core.NewBuilder(testOrigin, 1), authfsm.WithTimeout(5*time.Second))
	t.Cleanup(m.Close)
	return m
}

func waitState(t *testing.T, m *authfsm.Machine, want authfsm.State) authfsm.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := m.Watch(ctx, func(s authfsm.Snapshot) bool { return s.State == want })
	require.NoError(t, err, "state stayed %s (err %v), want %s", snap.State, snap.Err, want)
	return snap
}

func TestEndToEnd_FirstConnect(t *testing.T) {
	env := newBackend(t)
	markers := marker.NewMemoryStore()
	w := newWallet(t)
	m := newMachine(t, env, markers)

	require.NoError(t, m.Connect(w))
	snap := waitState(t, m, authfsm.Authenticated)

	require.NotNil(t, snap.Profile)
	assert.Equal(t, strings.ToLower(w.Address()), snap.Profile.Address)
	assert.Equal(t, core.RoleUser, snap.Profile.Role)
	assert.Equal(t, core.TierHunter, snap.Profile.Tier)
	assert.True(t, snap.PromptUsername)
	assert.True(t, snap.AccessAllowed())
	assert.False(t, snap.Restored)

	assert.Equal(t, 1, env.profiles(t))
	assert.Equal(t, 1, markers.Len())
	assert.Equal(t, int32(1), w.signs.Load())

	profile, err := env.client.FetchProfile(context.Background(), snap.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, snap.Profile.ID, profile.ID)
}

func TestEndToEnd_NewTabVerifiesAgain(t *testing.T) {
	env := newBackend(t)
	w := newWallet(t)

	first := newMachine(t, env, marker.NewMemoryStore())
	require.NoError(t, first.Connect(w))
	firstSnap := waitState(t, first, authfsm.Authenticated)

	// A second tab starts with an empty marker store
	tabMarkers := marker.NewMemoryStore()
	second := newMachine(t, env, tabMarkers)
	require.NoError(t, second.Connect(w))
	secondSnap := waitState(t, second, authfsm.Authenticated)

	assert.False(t, secondSnap.Restored)
	assert.Equal(t, int32(2), w.signs.Load())
	assert.Equal(t, firstSnap.Profile.ID, secondSnap.Profile.ID)
	assert.False(t, secondSnap.PromptUsername)
	assert.Equal(t, 1, env.profiles(t))
	assert.Equal(t, 1, tabMarkers.Len())
}

func TestEndToEnd_ReconnectRestoresFromBolt(t *testing.T) {
	env := newBackend(t)
	w := newWallet(t)

	markers, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "markers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = markers.Close() })

	m := newMachine(t, env, markers)
	require.NoError(t, m.Connect(w))
	verified := waitState(t, m, authfsm.Authenticated)

	m.Disconnect()
	assert.Equal(t, authfsm.Disconnected, m.Snapshot().State)

	require.NoError(t, m.Connect(w))
	restored := waitState(t, m, authfsm.Authenticated)

	assert.True(t, restored.Restored)
	assert.Equal(t, int32(1), w.signs.Load())
	assert.Equal(t, verified.Profile.ID, restored.Profile.ID)
	assert.NotEqual(t, verified.RefreshToken, restored.RefreshToken)

	mk, err := markers.Get(context.Background(), w.Address())
	require.NoError(t, err)
	assert.Equal(t, restored.RefreshToken, mk.RefreshToken)

	// The pre-rotation refresh token is spent
	_, err = env.client.Refresh(context.Background(), verified.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
}

func TestEndToEnd_RevokedMarkerSelfHeals(t *testing.T) {
	env := newBackend(t)
	w := newWallet(t)
	markers := marker.NewMemoryStore()

	m := newMachine(t, env, markers)
	require.NoError(t, m.Connect(w))
	verified := waitState(t, m, authfsm.Authenticated)
	m.Disconnect()

	require.NoError(t, env.client.Logout(context.Background(), verified.RefreshToken))

	require.NoError(t, m.Connect(w))
	snap := waitState(t, m, authfsm.Authenticated)

	assert.False(t, snap.Restored)
	assert.Equal(t, int32(2), w.signs.Load())
	assert.Equal(t, 1, env.profiles(t))
}

func TestEndToEnd_RejectThenAccept(t *testing.T) {
	env := newBackend(t)
	markers := marker.NewMemoryStore()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var prompts strings.Builder
	w := wallet.NewConfirmingWallet(wallet.NewKeyWallet(key), wallet.NewPrompter(strings.NewReader("n\ny\n"), &prompts))

	m := newMachine(t, env, markers)
	require.NoError(t, m.Connect(w))

	failed := waitState(t, m, authfsm.VerificationFailed)
	assert.ErrorIs(t, failed.Err, core.ErrUserRejectedSignature)
	assert.Equal(t, 0, env.profiles(t))
	assert.Zero(t, markers.Len())
	assert.Nil(t, failed.Profile)

	require.NoError(t, m.Retry())
	snap := waitState(t, m, authfsm.Authenticated)

	assert.Equal(t, 1, env.profiles(t))
	assert.Equal(t, 1, markers.Len())
	assert.NotNil(t, snap.Profile)
	assert.Contains(t, prompts.String(), "wants you to sign in with your Ethereum account")
}
