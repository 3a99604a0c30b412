package principal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bridge maps wallet addresses to backend principals.
// The login handle and secret are derived from the address, so a wallet has
// exactly one principal and repeated calls are idempotent.
type Bridge struct {
	store      ports.PrincipalStore
	serviceKey []byte
	domain     string
	now        func() time.Time
}

// NewBridge creates a principal bridge. serviceKey must stay server-side.
func NewBridge(store ports.PrincipalStore, serviceKey, domain string) *Bridge {
	return &Bridge{
		store:      store,
		serviceKey: []byte(serviceKey),
		domain:     domain,
		now:        time.Now,
	}
}

var _ ports.PrincipalProvider = (*Bridge)(nil)

// Login returns the login handle of address
func (b *Bridge) Login(address string) string {
	return fmt.Sprintf("wallet+%s@%s", strings.ToLower(address), b.domain)
}

// Secret returns the derived password of address
func (b *Bridge) Secret(address string) string {
	mac := hmac.New(sha256.New, b.serviceKey)
	mac.Write([]byte(strings.ToLower(address)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EnsurePrincipal returns the principal id of address, creating it on first use
func (b *Bridge) EnsurePrincipal(ctx context.Context, address string) (string, error) {
	login := b.Login(address)
	secret := b.Secret(address)

	p, err := b.store.GetPrincipalByLogin(ctx, login)
	switch {
	case err == nil:
		return b.check(p, secret)
	case !errors.Is(err, core.ErrPrincipalNotFound):
		return "", fmt.Errorf("lookup %s: %v: %w", login, err, core.ErrSessionIssuanceFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %v: %w", err, core.ErrSessionIssuanceFailed)
	}

	p = &core.Principal{
		ID:           uuid.New().String(),
		Login:        login,
		PasswordHash: string(hash),
		CreatedAt:    b.now().UTC(),
	}
	err = b.store.CreatePrincipal(ctx, p)
	switch {
	case err == nil:
		return p.ID, nil
	case errors.Is(err, core.ErrPrincipalExists):
		// Lost a concurrent sign-up; the winner's record is ours too
		existing, getErr := b.store.GetPrincipalByLogin(ctx, login)
		if getErr != nil {
			return "", fmt.Errorf("reload %s: %v: %w", login, getErr, core.ErrSessionIssuanceFailed)
		}
		return b.check(existing, secret)
	default:
		return "", fmt.Errorf("create %s: %v: %w", login, err, core.ErrSessionIssuanceFailed)
	}
}

func (b *Bridge) check(p *core.Principal, secret string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(secret)); err != nil {
		return "", fmt.Errorf("principal %s secret mismatch: %w", p.Login, core.ErrSessionIssuanceFailed)
	}
	return p.ID, nil
}
