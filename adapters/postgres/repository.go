package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/dropgate/adapters/gooselog"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the repository needs
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository keeps principals and profiles in Postgres
type Repository struct {
	db DB
}

var (
	_ ports.PrincipalStore = (*Repository)(nil)
	_ ports.ProfileStore   = (*Repository)(nil)
)

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Connect opens a pool for databaseURL and applies migrations, logging them to logger
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetLogger(gooselog.New(logger))
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *Repository) CreatePrincipal(ctx context.Context, p *core.Principal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO principals (id, login, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.Login, p.PasswordHash, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrPrincipalExists
		}
		return fmt.Errorf("failed to insert principal: %w", err)
	}

	return nil
}

func (r *Repository) GetPrincipalByLogin(ctx context.Context, login string) (*core.Principal, error) {
	query := `
		SELECT id, login, password_hash, created_at
		FROM principals
		WHERE login = $1
		LIMIT 1;
	`

	var p core.Principal
	err := r.db.QueryRow(ctx, query, login).Scan(&p.ID, &p.Login, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by login: %w", err)
	}

	return &p, nil
}

// CreateProfile inserts a profile; the unique address index settles concurrent first logins
func (r *Repository) CreateProfile(ctx context.Context, p *core.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (id, address, role, tier, username, username_set, username_prompted,
			avatar_url, registered_at, banned, xp, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Address, string(p.Role), string(p.Tier), p.Username, p.UsernameSet, p.UsernamePrompted,
		p.AvatarURL, p.RegisteredAt, p.Banned, p.XP, p.Level)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrProfileExists
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

func (r *Repository) GetProfileByAddress(ctx context.Context, address string) (*core.Profile, error) {
	query := `
		SELECT id, address, role, tier, username, username_set, username_prompted,
			avatar_url, registered_at, banned, xp, level
		FROM profiles
		WHERE address = $1
		LIMIT 1;
	`

	var p core.Profile
	var role, tier string
	err := r.db.QueryRow(ctx, query, address).Scan(
		&p.ID, &p.Address, &role, &tier, &p.Username, &p.UsernameSet, &p.UsernamePrompted,
		&p.AvatarURL, &p.RegisteredAt, &p.Banned, &p.XP, &p.Level,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile by address: %w", err)
	}

	p.Role = core.Role(role)
	p.Tier = core.Tier(tier)

	return &p, nil
}

func (r *Repository) MarkUsernamePrompted(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE profiles SET username_prompted = TRUE
		WHERE id = $1 AND NOT username_prompted
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark username prompted: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
