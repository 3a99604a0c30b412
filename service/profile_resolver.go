package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	refetchAttempts = 3
	refetchBackoff  = 50 * time.Millisecond
)

// ProfileResolver returns the profile of a verified address, creating it on first login
type ProfileResolver struct {
	store   ports.ProfileStore
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	backoff time.Duration
}

func NewProfileResolver(store ports.ProfileStore, logger *zap.Logger, metrics *Metrics) *ProfileResolver {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ProfileResolver{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		backoff: refetchBackoff,
	}
}

// Resolve returns the profile for address. created reports whether this call
// inserted it; prompt is true the first time the caller should ask for a username.
func (r *ProfileResolver) Resolve(ctx context.Context, address, principalID string) (profile *core.Profile, created, prompt bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProfileResolver.Resolve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("profile.created", created))
		span.End()
	}()

	profile, err = r.store.GetProfileByAddress(ctx, address)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrProfileNotFound):
		profile, created, err = r.create(ctx, address, principalID)
		if err != nil {
			return nil, false, false, err
		}
	default:
		return nil, false, false, fmt.Errorf("lookup %s: %v: %w", address, err, core.ErrProfileFetchFailed)
	}

	return profile, created, r.claimPrompt(ctx, profile), nil
}

func (r *ProfileResolver) create(ctx context.Context, address, principalID string) (*core.Profile, bool, error) {
	profile := core.NewProfile(principalID, address, r.now())

	err := r.store.CreateProfile(ctx, profile)
	switch {
	case err == nil:
		r.metrics.profiles.Inc()
		r.logger.Info("profile created", zap.String("address", address), zap.String("profile_id", profile.ID))
		return profile, true, nil
	case errors.Is(err, core.ErrProfileExists):
		r.metrics.profileRaces.Inc()
		r.logger.Debug("profile created concurrently, re-fetching", zap.String("address", address))
		existing, err := r.refetch(ctx, address)
		return existing, false, err
	default:
		return nil, false, fmt.Errorf("create %s: %v: %w", address, err, core.ErrProfileCreateFailed)
	}
}

// refetch reads the profile that a concurrent create just inserted.
// The winning write can lag on replicas, so a miss is retried a few times.
func (r *ProfileResolver) refetch(ctx context.Context, address string) (*core.Profile, error) {
	var lastErr error
	for attempt := range refetchAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("refetch %s: %v: %w", address, ctx.Err(), core.ErrProfileFetchFailed)
			case <-time.After(r.backoff):
			}
		}

		profile, err := r.store.GetProfileByAddress(ctx, address)
		if err == nil {
			return profile, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("refetch %s after %d attempts: %v: %w", address, refetchAttempts, lastErr, core.ErrProfileFetchFailed)
}

// claimPrompt reports whether this login should show the username prompt.
// A store error only costs the prompt, never the login.
func (r *ProfileResolver) claimPrompt(ctx context.Context, profile *core.Profile) bool {
	if !profile.NeedsUsername() || profile.UsernamePrompted {
		return false
	}

	claimed, err := r.store.MarkUsernamePrompted(ctx, profile.ID)
	if err != nil {
		r.logger.Warn("failed to mark username prompted", zap.String("profile_id", profile.ID), zap.Error(err))
		return false
	}
	if claimed {
		profile.UsernamePrompted = true
	}

	return claimed
}

// Lookup returns the stored profile of address without creating one
func (r *ProfileResolver) Lookup(ctx context.Context, address string) (*core.Profile, error) {
	profile, err := r.store.GetProfileByAddress(ctx, address)
	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, core.ErrProfileNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("lookup %s: %v: %w", address, err, core.ErrProfileFetchFailed)
	}
}
