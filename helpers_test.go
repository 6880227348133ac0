package codepass

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/codepass/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), testSecret...)
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memDirectory struct {
	mu          sync.Mutex
	registrants map[string]Registrant
	err         error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{registrants: map[string]Registrant{}}
}

func (d *memDirectory) RegistrantExists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.registrants[id]
	return ok, nil
}

func (d *memDirectory) CreateRegistrant(_ context.Context, r Registrant) (Registrant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return Registrant{}, d.err
	}
	if existing, ok := d.registrants[r.RandomID]; ok {
		return existing, nil
	}
	d.registrants[r.RandomID] = r
	return r, nil
}

func (d *memDirectory) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *memDirectory) remove(id string) {
	d.mu.Lock()
	delete(d.registrants, id)
	d.mu.Unlock()
}

type memAdmins struct {
	byLogin map[string]AdminRecord
}

func (a *memAdmins) AdminExists(_ context.Context, adminID string) (bool, error) {
	for _, rec := range a.byLogin {
		if rec.AdminID == adminID {
			return true, nil
		}
	}
	return false, nil
}

func (a *memAdmins) FindAdmin(_ context.Context, loginID string) (AdminRecord, error) {
	rec, ok := a.byLogin[loginID]
	if !ok {
		return AdminRecord{}, ErrAdminNotFound
	}
	return rec, nil
}

type recordingReservations struct {
	mu   sync.Mutex
	reqs []ReservationRequest
	err  error
}

func (r *recordingReservations) Schedule(_ context.Context, req ReservationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.err
}

func (r *recordingReservations) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

type testEnv struct {
	engine       *Engine
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	clock        *testClock
	directory    *memDirectory
	reservations *recordingReservations
}

const (
	testAdminLogin    = "ops@example.test"
	testAdminID       = "adm-1"
	testAdminPassword = "correct-horse-battery"
)

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWith(t, mutate, nil)
}

func newTestEnvWith(t *testing.T, mutate func(*Config), extra func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash(testAdminPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	env := &testEnv{
		mr:           mr,
		rdb:          rdb,
		clock:        newTestClock(),
		directory:    newMemDirectory(),
		reservations: &recordingReservations{},
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(env.directory).
		WithAdminDirectory(&memAdmins{byLogin: map[string]AdminRecord{
			testAdminLogin: {AdminID: testAdminID, LoginID: testAdminLogin, PasswordHash: hash},
		}}).
		WithReservations(env.reservations).
		WithClock(env.clock.Now).
		WithMetricsEnabled(true)
	if extra != nil {
		extra(b)
	}

	env.engine, err = b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		env.engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// fixedCodes makes the engine hand out codes from seq, repeating the last one.
func (env *testEnv) fixedCodes(seq ...string) {
	var mu sync.Mutex
	i := 0
	env.engine.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return code, nil
	}
}

func (env *testEnv) verifiedPair(t *testing.T, code string) (Registrant, TokenPair) {
	t.Helper()
	env.fixedCodes(code)

	ctx := context.Background()
	if _, err := env.engine.IssueCode(ctx, CodePayload{Guardians: 1}); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	res, err := env.engine.Verify(ctx, code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return res.Registrant, res.Tokens
}

var errBackendDown = errors.New("backend down")
