package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ codepass.Directory      = (*Store)(nil)
	_ codepass.AdminDirectory = (*Store)(nil)
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func TestFindAdminNotFound(t *testing.T) {
	s := &Store{db: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}
	if _, err := s.FindAdmin(context.Background(), "nobody"); !errors.Is(err, codepass.ErrAdminNotFound) {
		t.Fatalf("expected ErrAdminNotFound, got %v", err)
	}
}

func TestFindAdminDatabaseError(t *testing.T) {
	boom := errors.New("connection refused")
	s := &Store{db: &fakeDB{row: fakeRow{err: boom}}}
	_, err := s.FindAdmin(context.Background(), "ops")
	if !errors.Is(err, boom) || errors.Is(err, codepass.ErrAdminNotFound) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}

func TestCreateRegistrantReturnsStoredRow(t *testing.T) {
	stored := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{"482913", 2, 1, int64(7), stored}}}
	s := &Store{db: db}

	got, err := s.CreateRegistrant(context.Background(), codepass.Registrant{RandomID: "482913", Guardians: 5, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("CreateRegistrant failed: %v", err)
	}
	if got.Guardians != 2 || !got.CreatedAt.Equal(stored) {
		t.Fatalf("expected stored row, got %+v", got)
	}
	if !strings.Contains(db.lastSQL, "ON CONFLICT (random_id)") {
		t.Fatalf("expected upsert, got %q", db.lastSQL)
	}
}

func TestRegistrantExists(t *testing.T) {
	s := &Store{db: &fakeDB{row: fakeRow{values: []any{true}}}}
	ok, err := s.RegistrantExists(context.Background(), "482913")
	if err != nil || !ok {
		t.Fatalf("expected true, got %v %v", ok, err)
	}
}

func TestPutAdminValidates(t *testing.T) {
	db := &fakeDB{}
	s := &Store{db: db}
	if err := s.PutAdmin(context.Background(), codepass.AdminRecord{AdminID: "adm-1"}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := s.PutAdmin(context.Background(), codepass.AdminRecord{AdminID: "adm-1", LoginID: "ops", PasswordHash: "h"}); err != nil {
		t.Fatalf("PutAdmin failed: %v", err)
	}
	if len(db.lastArgs) != 3 {
		t.Fatalf("expected 3 args, got %d", len(db.lastArgs))
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "postgres://%zz", PoolConfig{}); err == nil {
		t.Fatal("expected parse error")
	}
}
