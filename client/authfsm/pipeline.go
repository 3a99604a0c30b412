package authfsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/dropgate/client/marker"
	"github.com/layer-3/dropgate/client/wallet"
	"github.com/layer-3/dropgate/core"
	"go.uber.org/zap"
)

// attempt is one run of the restore or verify pipeline for a captured address.
// Every result is applied only while (epoch, address) is still current.
type attempt struct {
	m       *Machine
	epoch   uint64
	address string
	wallet  wallet.Wallet
}

func (a *attempt) run(ctx context.Context) {
	defer a.finish()

	mk, ok := a.readMarker(ctx)
	if !ok {
		return
	}
	if mk != nil {
		a.restore(ctx, mk)
		return
	}
	a.verify(ctx)
}

func (a *attempt) finish() {
	m := a.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch == a.epoch {
		m.inFlight = false
		m.cancel = nil
	}
}

// readMarker returns a nil marker when none is stored and false when the attempt is stale
func (a *attempt) readMarker(ctx context.Context) (*marker.Marker, bool) {
	m := a.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isCurrentLocked(a.epoch, a.address) {
		return nil, false
	}

	mk, err := m.markers.Get(ctx, a.address)
	switch {
	case err == nil:
		return mk, true
	case errors.Is(err, marker.ErrNotFound):
		return nil, true
	default:
		m.logger.Warn("failed to read verification marker", zap.String("address", a.address), zap.Error(err))
		return nil, true
	}
}

func (a *attempt) restore(ctx context.Context, mk *marker.Marker) {
	m := a.m

	grant, err := withTimeout(ctx, m.timeout, func(ctx context.Context) (*core.Grant, error) {
		return m.backend.Refresh(ctx, mk.RefreshToken)
	})

	var profile *core.Profile
	if err == nil {
		profile, err = withTimeout(ctx, m.timeout, func(ctx context.Context) (*core.Profile, error) {
			return m.backend.FetchProfile(ctx, grant.AccessToken)
		})
	}
	if err == nil && !core.SameAddress(profile.Address, a.address) {
		err = fmt.Errorf("profile %s belongs to %s: %w", profile.ID, profile.Address, core.ErrProfileNotFound)
	}
	if err != nil {
		a.restoreFailed(ctx, err)
		return
	}

	m.mu.Lock()
	if !m.isCurrentLocked(a.epoch, a.address) {
		m.mu.Unlock()
		return
	}

	rotated := &marker.Marker{Address: a.address, VerifiedAt: mk.VerifiedAt, RefreshToken: grant.RefreshToken}
	if err := m.markers.Put(ctx, rotated); err != nil {
		m.logger.Warn("failed to store rotated refresh token", zap.String("address", a.address), zap.Error(err))
	}

	m.grant = grant
	m.profile = profile
	m.prompt = false
	m.restored = true
	m.inFlight = false
	m.setStateLocked(Authenticated)
	m.mu.Unlock()

	m.logger.Info("session restored", zap.String("address", a.address), zap.String("profile_id", profile.ID))
}

// restoreFailed clears a marker whose session or profile is gone and verifies again,
// at most maxSelfHeals times per connection
func (a *attempt) restoreFailed(ctx context.Context, cause error) {
	m := a.m
	m.mu.Lock()

	if !m.isCurrentLocked(a.epoch, a.address) {
		m.mu.Unlock()
		return
	}

	if !selfHealable(cause) {
		n := a.failLocked(fmt.Errorf("%w: %w", core.ErrProfileFetchFailed, cause))
		m.mu.Unlock()
		m.emit(n)
		return
	}

	if err := m.markers.Delete(ctx, a.address); err != nil {
		m.logger.Warn("failed to clear verification marker", zap.String("address", a.address), zap.Error(err))
	}

	if m.heals >= m.maxSelfHeals {
		n := a.failLocked(fmt.Errorf("%w: self-heal limit reached: %w", core.ErrProfileFetchFailed, cause))
		m.mu.Unlock()
		m.emit(n)
		return
	}

	m.heals++
	m.logger.Info("stale verification marker cleared", zap.String("address", a.address), zap.Error(cause))
	m.mu.Unlock()

	a.verify(ctx)
}

func (a *attempt) verify(ctx context.Context) {
	m := a.m

	m.mu.Lock()
	if !m.isCurrentLocked(a.epoch, a.address) {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(Verifying)
	m.mu.Unlock()

	msg := m.builder.Build(a.address).Message()

	sig, err := withTimeout(ctx, m.timeout, func(ctx context.Context) (string, error) {
		return a.wallet.SignMessage(ctx, msg)
	})

	var grant *core.Grant
	if err == nil {
		grant, err = withTimeout(ctx, m.timeout, func(ctx context.Context) (*core.Grant, error) {
			return m.backend.Verify(ctx, core.VerifyRequest{Message: msg, Signature: sig, Address: a.address})
		})
	}
	if err == nil && (grant.Profile == nil || !core.SameAddress(grant.Profile.Address, a.address)) {
		err = fmt.Errorf("verification returned no profile for %s: %w", a.address, core.ErrProfileFetchFailed)
	}

	m.mu.Lock()
	if !m.isCurrentLocked(a.epoch, a.address) {
		m.mu.Unlock()
		m.logger.Debug("discarding result of abandoned verification", zap.String("address", a.address))
		return
	}

	if err != nil {
		if derr := m.markers.Delete(ctx, a.address); derr != nil {
			m.logger.Warn("failed to clear verification marker", zap.String("address", a.address), zap.Error(derr))
		}
		n := a.failLocked(err)
		m.mu.Unlock()
		m.emit(n)
		return
	}

	// Session and profile exist at this point
	mk := &marker.Marker{Address: a.address, VerifiedAt: m.now().UTC(), RefreshToken: grant.RefreshToken}
	if err := m.markers.Put(ctx, mk); err != nil {
		m.logger.Warn("failed to store verification marker", zap.String("address", a.address), zap.Error(err))
	}

	m.grant = grant
	m.profile = grant.Profile
	m.prompt = grant.PromptUsername
	m.restored = false
	m.inFlight = false
	m.setStateLocked(Authenticated)
	m.mu.Unlock()

	m.logger.Info("wallet verified", zap.String("address", a.address), zap.String("profile_id", grant.Profile.ID))
}

func (a *attempt) failLocked(err error) Notice {
	m := a.m
	m.clearSessionLocked()
	m.lastErr = err
	m.inFlight = false
	m.setStateLocked(VerificationFailed)
	return noticeFor(a.address, err)
}

// selfHealable reports whether a restore error means the marker is stale
func selfHealable(err error) bool {
	return errors.Is(err, core.ErrProfileNotFound) ||
		errors.Is(err, core.ErrTokenExpired) ||
		errors.Is(err, core.ErrTokenInvalidated) ||
		errors.Is(err, core.ErrInvalidToken)
}

// withTimeout runs one step under its own deadline.
// Hitting that deadline, as opposed to cancellation of ctx, becomes ErrVerificationTimeout.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stepCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w: %w", core.ErrVerificationTimeout, err)
	}
	return v, err
}
