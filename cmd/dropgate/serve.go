package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dropgate/adapters/events"
	"github.com/layer-3/dropgate/adapters/postgres"
	"github.com/layer-3/dropgate/adapters/principal"
	"github.com/layer-3/dropgate/adapters/signature"
	"github.com/layer-3/dropgate/adapters/sqlite"
	"github.com/layer-3/dropgate/adapters/store"
	"github.com/layer-3/dropgate/adapters/tokenizer"
	"github.com/layer-3/dropgate/config"
	"github.com/layer-3/dropgate/ports"
	"github.com/layer-3/dropgate/service"
	transport "github.com/layer-3/dropgate/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sign-in backend",
		Long: `Run the HTTP backend. Configuration comes from the environment:

  DATABASE_URL          SQLite file or postgres:// URL (default dropgate.db)
  REDIS_URL             nonce/revocation store and event stream (optional)
  BACKEND_SERVICE_KEY   privileged key for principal credentials (required)
  BACKEND_PUBLIC_KEY    API key clients must send as X-Api-Key
  JWT_SIGNING_KEY       hex SEC 1 DER P-256 key
  CHAIN_ID, SIWE_URI, SIWE_DOMAIN, ADMIN_PASSWORD_HASHES`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

type profileBackend interface {
	ports.PrincipalStore
	ports.ProfileStore
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	signKey, ephemeral, err := cfg.SigningKey()
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn("JWT_SIGNING_KEY not set, using an ephemeral key; sessions end on restart")
	}

	backend, closeDB, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	tokenStore, publisher, closeBus, err := openBus(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	svcCfg := service.DefaultConfig(cfg.URI, cfg.ChainID)
	svcCfg.Domain = cfg.Domain
	svcCfg.ChallengeTTL = cfg.ChallengeTTL
	svcCfg.AccessTTL = cfg.AccessTTL
	svcCfg.RefreshTTL = cfg.RefreshTTL

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		tokenStore,
		events.NewWatermillPublisher(publisher),
		signature.NewPersonalSign(),
		principal.NewBridge(backend, cfg.ServiceKey, cfg.Domain),
		service.NewProfileResolver(backend, logger, metrics),
		svcCfg,
		service.WithLogger(logger),
		service.WithMetrics(metrics),
	)

	if len(cfg.AdminPasswordHashes) == 0 {
		logger.Warn("ADMIN_PASSWORD_HASHES not set, admin login is disabled")
	}
	adminGate := service.NewAdminGate(cfg.AdminPasswordHashes, logger)

	router := transport.SetupRouter(authService, adminGate, transport.RouterConfig{
		APIKey:   cfg.PublicAPIKey,
		Logger:   logger,
		Gatherer: registry,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dropgate listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("domain", cfg.Domain),
			zap.Int64("chain_id", cfg.ChainID),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (profileBackend, func(), error) {
	if cfg.UsesPostgres() {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres profile store")
		return postgres.NewRepository(pool), pool.Close, nil
	}

	db, err := sqlite.New(ctx, cfg.DatabaseURL, sqlite.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	n, err := db.CountProfiles(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("using sqlite profile store", zap.String("path", cfg.DatabaseURL), zap.Int("profiles", n))

	return db, func() { _ = db.Close() }, nil
}

// openBus returns the nonce/revocation store and the event publisher.
// Without REDIS_URL both stay in process.
func openBus(cfg *config.ServerConfig, logger *zap.Logger) (ports.Store, message.Publisher, func(), error) {
	wmLogger := events.NewZapLogger(logger)

	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, nonces and revocations are kept in memory")
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
	if err != nil {
		redisClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	closeFn := func() {
		_ = publisher.Close()
		_ = redisClient.Close()
	}

	return store.NewRedisStore(redisClient), publisher, closeFn, nil
}
