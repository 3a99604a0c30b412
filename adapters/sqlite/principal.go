package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
)

var _ ports.PrincipalStore = (*Storage)(nil)

// CreatePrincipal inserts a new principal
func (s *Storage) CreatePrincipal(ctx context.Context, p *core.Principal) error {
	query := `
		INSERT INTO principals (id, login, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, p.ID, p.Login, p.PasswordHash, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrPrincipalExists
		}
		return fmt.Errorf("failed to insert principal: %w", err)
	}

	return nil
}

// GetPrincipalByLogin retrieves a principal by login handle
func (s *Storage) GetPrincipalByLogin(ctx context.Context, login string) (*core.Principal, error) {
	query := `
		SELECT id, login, password_hash, created_at
		FROM principals
		WHERE login = ?
	`

	p := &core.Principal{}
	err := s.db.QueryRowContext(ctx, query, login).Scan(&p.ID, &p.Login, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return p, nil
}
