package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/MrEthical07/codepass/directory/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const migrationTable = "schema_migrations"

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Store implements codepass.Directory and codepass.AdminDirectory over one
// SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies the bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RegistrantExists(ctx context.Context, randomID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM registrants WHERE random_id = ?`, randomID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup registrant: %w", err)
	}
	return true, nil
}

// CreateRegistrant inserts r unless a registrant with the same RandomID
// exists, and returns the stored row either way.
func (s *Store) CreateRegistrant(ctx context.Context, r codepass.Registrant) (codepass.Registrant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return codepass.Registrant{}, fmt.Errorf("begin registrant tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO registrants (random_id, guardians, visitors, schedule_id, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(random_id) DO NOTHING`,
		r.RandomID, r.Guardians, r.Visitors, r.ScheduleID, toMillis(r.CreatedAt),
	); err != nil {
		return codepass.Registrant{}, fmt.Errorf("insert registrant: %w", err)
	}

	var (
		out       codepass.Registrant
		createdAt int64
	)
	if err := tx.QueryRowContext(ctx, `
SELECT random_id, guardians, visitors, schedule_id, created_at
FROM registrants WHERE random_id = ?`, r.RandomID,
	).Scan(&out.RandomID, &out.Guardians, &out.Visitors, &out.ScheduleID, &createdAt); err != nil {
		return codepass.Registrant{}, fmt.Errorf("load registrant: %w", err)
	}
	out.CreatedAt = fromMillis(createdAt)

	if err := tx.Commit(); err != nil {
		return codepass.Registrant{}, fmt.Errorf("commit registrant: %w", err)
	}
	return out, nil
}

func (s *Store) AdminExists(ctx context.Context, adminID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE admin_id = ?`, adminID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup admin: %w", err)
	}
	return true, nil
}

// FindAdmin returns codepass.ErrAdminNotFound for unknown login ids.
func (s *Store) FindAdmin(ctx context.Context, loginID string) (codepass.AdminRecord, error) {
	var rec codepass.AdminRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT admin_id, login_id, password_hash FROM admins WHERE login_id = ?`, loginID,
	).Scan(&rec.AdminID, &rec.LoginID, &rec.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return codepass.AdminRecord{}, codepass.ErrAdminNotFound
	}
	if err != nil {
		return codepass.AdminRecord{}, fmt.Errorf("find admin: %w", err)
	}
	return rec, nil
}

// PutAdmin creates an admin or replaces the password hash of an existing one.
func (s *Store) PutAdmin(ctx context.Context, rec codepass.AdminRecord) error {
	if rec.AdminID == "" || rec.LoginID == "" || rec.PasswordHash == "" {
		return errors.New("admin id, login id and password hash are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO admins (admin_id, login_id, password_hash, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(admin_id) DO UPDATE SET login_id = excluded.login_id, password_hash = excluded.password_hash`,
		rec.AdminID, rec.LoginID, rec.PasswordHash, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put admin: %w", err)
	}
	return nil
}

// applyMigrations runs each embedded .sql file at most once, in name order.
func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}
