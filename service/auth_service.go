package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/layer-3/dropgate/service"

// Config holds the parameters every challenge must match
type Config struct {
	Domain       string
	URI          string // origin the challenge must name
	ChainID      int64
	ChallengeTTL time.Duration // maximum age of a signed challenge
	ClockSkew    time.Duration // tolerated client clock lead
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// DefaultConfig returns the default lifetimes for the app at origin and chain
func DefaultConfig(origin string, chainID int64) Config {
	return Config{
		Domain:       core.HostFromOrigin(origin),
		URI:          origin,
		ChainID:      chainID,
		ChallengeTTL: 5 * time.Minute,
		ClockSkew:    30 * time.Second,
		AccessTTL:    5 * time.Minute,
		RefreshTTL:   5 * 24 * time.Hour, // 5 days
	}
}

// Option customises an AuthService
type Option func(*AuthService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *AuthService) { s.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer  ports.Tokenizer
	store      ports.Store
	eventPub   ports.EventPublisher
	verifier   ports.SignatureVerifier
	principals ports.PrincipalProvider
	profiles   *ProfileResolver

	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	verifier ports.SignatureVerifier,
	principals ports.PrincipalProvider,
	profiles *ProfileResolver,
	cfg Config,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:  tokenizer,
		store:      store,
		eventPub:   eventPub,
		verifier:   verifier,
		principals: principals,
		profiles:   profiles,
		cfg:        cfg,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	return s
}

// Verify checks a signed challenge and, only if every step succeeds, returns
// a session for the signer together with its profile.
func (s *AuthService) Verify(ctx context.Context, req core.VerifyRequest) (grant *core.Grant, err error) {
	start := s.now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AuthService.Verify")
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = core.ErrorCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.verifications.WithLabelValues(outcome).Inc()
		s.metrics.verifyDuration.Observe(s.now().Sub(start).Seconds())
		span.End()
	}()

	address, err := core.NormalizeAddress(req.Address)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("wallet.address", address))

	challenge, err := core.ParseMessage(req.Message)
	if err != nil {
		return nil, err
	}
	if err := s.checkChallenge(challenge, address); err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(req.Message, req.Signature, address); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	fresh, err := s.store.ConsumeNonce(ctx, challenge.Nonce, s.cfg.ChallengeTTL+s.cfg.ClockSkew)
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !fresh {
		return nil, core.ErrNonceReused
	}

	principalID, err := s.principals.EnsurePrincipal(ctx, address)
	if err != nil {
		return nil, err
	}

	session := s.newSession(address, principalID)
	accessToken, refreshToken, err := s.issue(session)
	if err != nil {
		return nil, err
	}

	profile, created, prompt, err := s.profiles.Resolve(ctx, address, principalID)
	if err != nil {
		return nil, err
	}

	if err := s.eventPub.PublishVerified(ctx, session); err != nil {
		s.logger.Warn("failed to publish verified event", zap.String("address", address), zap.Error(err))
	}
	if created {
		if err := s.eventPub.PublishProfileCreated(ctx, profile); err != nil {
			s.logger.Warn("failed to publish profile created event", zap.String("address", address), zap.Error(err))
		}
	}

	s.logger.Info("wallet verified",
		zap.String("address", address),
		zap.String("principal_id", principalID),
		zap.Bool("new_profile", created),
	)

	return &core.Grant{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		AccessExpiry:   session.AccessExpiry,
		Profile:        profile,
		PromptUsername: prompt,
	}, nil
}

// checkChallenge binds the parsed message to this service and to the claimed signer
func (s *AuthService) checkChallenge(c *core.Challenge, address string) error {
	switch {
	case !core.SameAddress(c.Address, address):
		return fmt.Errorf("message address %s does not match %s: %w", c.Address, address, core.ErrInvalidChallenge)
	case c.Domain != s.cfg.Domain:
		return fmt.Errorf("unexpected domain %q: %w", c.Domain, core.ErrInvalidChallenge)
	case strings.TrimSuffix(c.URI, "/") != strings.TrimSuffix(s.cfg.URI, "/"):
		return fmt.Errorf("unexpected uri %q: %w", c.URI, core.ErrInvalidChallenge)
	case c.ChainID != s.cfg.ChainID:
		return fmt.Errorf("unexpected chain id %d: %w", c.ChainID, core.ErrInvalidChallenge)
	case c.Version != core.MessageVersion:
		return fmt.Errorf("unsupported version %q: %w", c.Version, core.ErrInvalidChallenge)
	}

	now := s.now()
	if c.IssuedAt.After(now.Add(s.cfg.ClockSkew)) {
		return fmt.Errorf("issued in the future at %s: %w", c.IssuedAt, core.ErrInvalidChallenge)
	}
	if now.Sub(c.IssuedAt) > s.cfg.ChallengeTTL {
		return fmt.Errorf("issued at %s: %w", c.IssuedAt, core.ErrChallengeExpired)
	}

	return nil
}

func (s *AuthService) newSession(address, principalID string) *core.Session {
	now := s.now()
	return &core.Session{
		ID:            uuid.New().String(),
		Address:       address,
		PrincipalID:   principalID,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.cfg.RefreshTTL),
		AccessExpiry:  now.Add(s.cfg.AccessTTL),
		RefreshID:     uuid.New().String(),
	}
}

func (s *AuthService) issue(session *core.Session) (string, string, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %v: %w", err, core.ErrSessionIssuanceFailed)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %v: %w", err, core.ErrSessionIssuanceFailed)
	}

	return accessToken, refreshToken, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (*core.Grant, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	// Spend the old refresh token for the rest of its lifetime. Only one
	// concurrent refresh can claim it; logged-out tokens are already claimed.
	remainingTime := session.RefreshExpiry.Sub(s.now())
	claimed, err := s.store.ClaimToken(ctx, session.RefreshID, remainingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}
	if !claimed {
		return nil, core.ErrTokenInvalidated
	}

	newSession := s.newSession(session.Address, session.PrincipalID)
	accessToken, refreshToken, err := s.issue(newSession)
	if err != nil {
		return nil, err
	}

	return &core.Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExpiry: newSession.AccessExpiry,
	}, nil
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if errors.Is(err, core.ErrTokenExpired) {
		// Nothing left to revoke
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	remainingTime := session.RefreshExpiry.Sub(s.now())
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remainingTime); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// The token is already invalidated in the store; the event only informs other instances
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		s.logger.Warn("failed to publish logout event", zap.String("address", session.Address), zap.Error(err))
	}

	return nil
}

// ValidateAccessToken returns the session of a live access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	// Access tokens die with the refresh token they were minted next to
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

// Profile returns the profile bound to session without creating one
func (s *AuthService) Profile(ctx context.Context, session *core.Session) (*core.Profile, error) {
	return s.profiles.Lookup(ctx, session.Address)
}
