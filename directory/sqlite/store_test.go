package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/codepass"
)

var (
	_ codepass.Directory      = (*Store)(nil)
	_ codepass.AdminDirectory = (*Store)(nil)
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestCreateRegistrantIsCreateOrFetch(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first, err := store.CreateRegistrant(ctx, codepass.Registrant{
		RandomID: "482913", Guardians: 2, Visitors: 1, ScheduleID: 7, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("CreateRegistrant failed: %v", err)
	}
	if !first.CreatedAt.Equal(created) || first.Guardians != 2 || first.ScheduleID != 7 {
		t.Fatalf("unexpected registrant: %+v", first)
	}

	second, err := store.CreateRegistrant(ctx, codepass.Registrant{
		RandomID: "482913", Guardians: 9, Visitors: 9, CreatedAt: created.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("second CreateRegistrant failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected stored registrant %+v, got %+v", first, second)
	}

	ok, err := store.RegistrantExists(ctx, "482913")
	if err != nil || !ok {
		t.Fatalf("expected registrant to exist, got %v %v", ok, err)
	}
	ok, err = store.RegistrantExists(ctx, "000000")
	if err != nil || ok {
		t.Fatalf("expected unknown registrant to be absent, got %v %v", ok, err)
	}
}

func TestCreateRegistrantConcurrent(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	const workers = 8
	results := make([]codepass.Registrant, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.CreateRegistrant(ctx, codepass.Registrant{
				RandomID: "111111", Guardians: i + 1, CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("workers saw different registrants: %+v vs %+v", results[i], results[0])
		}
	}
}

func TestAdmins(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	if _, err := store.FindAdmin(ctx, "ops@example.test"); !errors.Is(err, codepass.ErrAdminNotFound) {
		t.Fatalf("expected ErrAdminNotFound, got %v", err)
	}

	rec := codepass.AdminRecord{AdminID: "adm-1", LoginID: "ops@example.test", PasswordHash: "$argon2id$stub"}
	if err := store.PutAdmin(ctx, rec); err != nil {
		t.Fatalf("PutAdmin failed: %v", err)
	}
	got, err := store.FindAdmin(ctx, "ops@example.test")
	if err != nil || got != rec {
		t.Fatalf("FindAdmin = %+v, %v", got, err)
	}

	rec.PasswordHash = "$argon2id$rotated"
	if err := store.PutAdmin(ctx, rec); err != nil {
		t.Fatalf("PutAdmin update failed: %v", err)
	}
	if got, _ := store.FindAdmin(ctx, rec.LoginID); got.PasswordHash != rec.PasswordHash {
		t.Fatalf("expected rotated hash, got %q", got.PasswordHash)
	}

	ok, err := store.AdminExists(ctx, "adm-1")
	if err != nil || !ok {
		t.Fatalf("expected admin to exist, got %v %v", ok, err)
	}

	if err := store.PutAdmin(ctx, codepass.AdminRecord{AdminID: "adm-2"}); err == nil {
		t.Fatal("expected PutAdmin to reject an incomplete record")
	}
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	store, path := openTempStore(t)
	ctx := context.Background()
	if _, err := store.CreateRegistrant(ctx, codepass.Registrant{RandomID: "222222", Guardians: 1, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRegistrant failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ok, err := reopened.RegistrantExists(ctx, "222222")
	if err != nil || !ok {
		t.Fatalf("expected registrant after reopen, got %v %v", ok, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a(x);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
}
