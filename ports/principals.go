package ports

import (
	"context"

	"github.com/layer-3/dropgate/core"
)

// PrincipalProvider maps a verified wallet address to a backend principal.
// Calling it again for the same address returns the same principal.
type PrincipalProvider interface {
	EnsurePrincipal(ctx context.Context, address string) (string, error)
}

// PrincipalStore persists backend login identities
type PrincipalStore interface {
	// CreatePrincipal returns core.ErrPrincipalExists if the login is taken
	CreatePrincipal(ctx context.Context, p *core.Principal) error
	// GetPrincipalByLogin returns core.ErrPrincipalNotFound if absent
	GetPrincipalByLogin(ctx context.Context, login string) (*core.Principal, error)
}
