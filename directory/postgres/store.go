package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const queryTimeout = 3 * time.Second

// PoolConfig tunes the pgx pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MinConns          int32
	MaxConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// Connect parses databaseURL and opens a pool.
func Connect(ctx context.Context, databaseURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements codepass.Directory and codepass.AdminDirectory.
type Store struct {
	db querier
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) RegistrantExists(ctx context.Context, randomID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM registrants WHERE random_id = $1)`, randomID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup registrant: %w", err)
	}
	return exists, nil
}

// CreateRegistrant inserts r or returns the row already stored under its
// RandomID. The no-op update makes RETURNING yield the existing row.
func (s *Store) CreateRegistrant(ctx context.Context, r codepass.Registrant) (codepass.Registrant, error) {
	const q = `
		INSERT INTO registrants (random_id, guardians, visitors, schedule_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (random_id) DO UPDATE SET random_id = EXCLUDED.random_id
		RETURNING random_id, guardians, visitors, schedule_id, created_at`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out codepass.Registrant
	err := s.db.QueryRow(ctx, q, r.RandomID, r.Guardians, r.Visitors, r.ScheduleID, r.CreatedAt.UTC()).Scan(
		&out.RandomID, &out.Guardians, &out.Visitors, &out.ScheduleID, &out.CreatedAt,
	)
	if err != nil {
		return codepass.Registrant{}, fmt.Errorf("create registrant: %w", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

func (s *Store) AdminExists(ctx context.Context, adminID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM admins WHERE admin_id = $1)`, adminID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup admin: %w", err)
	}
	return exists, nil
}

func (s *Store) FindAdmin(ctx context.Context, loginID string) (codepass.AdminRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec codepass.AdminRecord
	err := s.db.QueryRow(ctx,
		`SELECT admin_id, login_id, password_hash FROM admins WHERE login_id = $1`, loginID,
	).Scan(&rec.AdminID, &rec.LoginID, &rec.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return codepass.AdminRecord{}, codepass.ErrAdminNotFound
	}
	if err != nil {
		return codepass.AdminRecord{}, fmt.Errorf("find admin: %w", err)
	}
	return rec, nil
}

// PutAdmin creates an admin or replaces its login id and password hash.
func (s *Store) PutAdmin(ctx context.Context, rec codepass.AdminRecord) error {
	if rec.AdminID == "" || rec.LoginID == "" || rec.PasswordHash == "" {
		return errors.New("admin id, login id and password hash are required")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO admins (admin_id, login_id, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (admin_id) DO UPDATE SET login_id = EXCLUDED.login_id, password_hash = EXCLUDED.password_hash`,
		rec.AdminID, rec.LoginID, rec.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("put admin: %w", err)
	}
	return nil
}
