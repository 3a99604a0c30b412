package ports

import (
	"context"

	"github.com/layer-3/dropgate/core"
)

// ProfileStore persists user profiles
type ProfileStore interface {
	// CreateProfile returns core.ErrProfileExists on a duplicate id or address
	CreateProfile(ctx context.Context, p *core.Profile) error
	// GetProfileByAddress returns core.ErrProfileNotFound if absent
	GetProfileByAddress(ctx context.Context, address string) (*core.Profile, error)
	// MarkUsernamePrompted sets the prompt flag and reports whether it was unset before
	MarkUsernamePrompted(ctx context.Context, id string) (bool, error)
}
