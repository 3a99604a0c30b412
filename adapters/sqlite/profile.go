package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
)

var _ ports.ProfileStore = (*Storage)(nil)

// CreateProfile inserts a profile. A duplicate id or address returns core.ErrProfileExists.
func (s *Storage) CreateProfile(ctx context.Context, p *core.Profile) error {
	query := `
		INSERT INTO profiles (id, address, role, tier, username, username_set, username_prompted,
			avatar_url, registered_at, banned, xp, level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Address,
		string(p.Role),
		string(p.Tier),
		p.Username,
		p.UsernameSet,
		p.UsernamePrompted,
		p.AvatarURL,
		p.RegisteredAt,
		p.Banned,
		p.XP,
		p.Level,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrProfileExists
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

// GetProfileByAddress retrieves a profile by lowercase address
func (s *Storage) GetProfileByAddress(ctx context.Context, address string) (*core.Profile, error) {
	query := `
		SELECT id, address, role, tier, username, username_set, username_prompted,
			avatar_url, registered_at, banned, xp, level
		FROM profiles
		WHERE address = ?
	`

	p := &core.Profile{}
	var role, tier string

	err := s.db.QueryRowContext(ctx, query, address).Scan(
		&p.ID,
		&p.Address,
		&role,
		&tier,
		&p.Username,
		&p.UsernameSet,
		&p.UsernamePrompted,
		&p.AvatarURL,
		&p.RegisteredAt,
		&p.Banned,
		&p.XP,
		&p.Level,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.Role = core.Role(role)
	p.Tier = core.Tier(tier)

	return p, nil
}

// MarkUsernamePrompted flips username_prompted once and reports whether this call flipped it
func (s *Storage) MarkUsernamePrompted(ctx context.Context, id string) (bool, error) {
	query := `UPDATE profiles SET username_prompted = 1 WHERE id = ? AND username_prompted = 0`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark username prompted: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// CountProfiles returns the number of stored profiles
func (s *Storage) CountProfiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}
