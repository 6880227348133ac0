package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/codepass/internal/stores"
	"github.com/MrEthical07/codepass/jwt"
	gojwt "github.com/golang-jwt/jwt/v5"
)

type fakeLedger struct {
	entries map[string]stores.RefreshEntry
}

func (l *fakeLedger) Redeem(_ context.Context, jti string) (stores.RefreshEntry, error) {
	e, ok := l.entries[jti]
	if !ok {
		return stores.RefreshEntry{}, stores.ErrRefreshNotFound
	}
	delete(l.entries, jti)
	return e, nil
}

func (l *fakeLedger) Save(_ context.Context, jti string, entry stores.RefreshEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("bad ttl")
	}
	if l.entries == nil {
		l.entries = map[string]stores.RefreshEntry{}
	}
	l.entries[jti] = entry
	return nil
}

var refreshNow = time.Unix(1_700_000_000, 0)

func refreshDeps(ledger RefreshLedger) RefreshDeps {
	return RefreshDeps{
		ClientIPFromContext: func(context.Context) string { return "" },
		Parse: func(token string, want jwt.Kind) (*jwt.Claims, error) {
			if token != "good" {
				return nil, jwt.ErrSignature
			}
			return &jwt.Claims{
				Kind:             jwt.KindRefresh,
				RegisteredClaims: gojwt.RegisteredClaims{
					Subject:   "U1",
					ID:        "j1",
					ExpiresAt: gojwt.NewNumericDate(refreshNow.Add(time.Hour)),
				},
			}, nil
		},
		Now:           func() time.Time { return refreshNow },
		RotateOnUse:   true,
		Ledger:        ledger,
		SubjectExists: func(context.Context, string, bool) (bool, error) { return true, nil },
		IssuePair: func(_ context.Context, subject string, _ bool) (jwt.Pair, error) {
			return jwt.Pair{AccessToken: "a." + subject}, nil
		},
	}
}

func TestRunRefreshRotatesOnce(t *testing.T) {
	ledger := &fakeLedger{entries: map[string]stores.RefreshEntry{"j1": {Subject: "U1"}}}
	deps := refreshDeps(ledger)

	res := RunRefresh(context.Background(), "good", deps)
	if res.Failure != RefreshFailureNone || res.Pair.AccessToken != "a.U1" {
		t.Fatalf("expected success, got %+v", res)
	}

	res = RunRefresh(context.Background(), "good", deps)
	if res.Failure != RefreshFailureReuse {
		t.Fatalf("expected reuse, got %v", res.Failure)
	}
}

func TestRunRefreshInvalidToken(t *testing.T) {
	res := RunRefresh(context.Background(), "bad", refreshDeps(&fakeLedger{}))
	if res.Failure != RefreshFailureInvalid || res.TokenReason != ValidateFailureSignature {
		t.Fatalf("expected invalid signature, got %+v", res)
	}
}

func TestRunRefreshLedgerMismatch(t *testing.T) {
	ledger := &fakeLedger{entries: map[string]stores.RefreshEntry{"j1": {Subject: "U1", IsAdmin: true}}}
	res := RunRefresh(context.Background(), "good", refreshDeps(ledger))
	if res.Failure != RefreshFailureMismatch {
		t.Fatalf("expected mismatch, got %v", res.Failure)
	}
}

func TestRunRefreshDirectoryFailure(t *testing.T) {
	ledger := &fakeLedger{entries: map[string]stores.RefreshEntry{"j1": {Subject: "U1"}}}
	deps := refreshDeps(ledger)
	deps.SubjectExists = func(context.Context, string, bool) (bool, error) { return false, errors.New("down") }

	if res := RunRefresh(context.Background(), "good", deps); res.Failure != RefreshFailureDirectory {
		t.Fatalf("expected directory failure, got %v", res.Failure)
	}
	if _, ok := ledger.entries["j1"]; !ok {
		t.Fatal("expected token id to stay redeemable after a directory failure")
	}

	deps.SubjectExists = func(context.Context, string, bool) (bool, error) { return true, nil }
	if res := RunRefresh(context.Background(), "good", deps); res.Failure != RefreshFailureNone {
		t.Fatalf("expected retry to succeed, got %v", res.Failure)
	}
}

func TestRunRefreshRestoresIDWhenIssueFails(t *testing.T) {
	ledger := &fakeLedger{entries: map[string]stores.RefreshEntry{"j1": {Subject: "U1"}}}
	deps := refreshDeps(ledger)
	deps.IssuePair = func(context.Context, string, bool) (jwt.Pair, error) {
		return jwt.Pair{}, stores.ErrRefreshRedisUnavailable
	}

	res := RunRefresh(context.Background(), "good", deps)
	if res.Failure != RefreshFailureIssue || res.RestoreErr != nil {
		t.Fatalf("expected issue failure with restored id, got %+v", res)
	}
	if got, ok := ledger.entries["j1"]; !ok || got.Subject != "U1" {
		t.Fatalf("expected j1 restored, got %+v", ledger.entries)
	}
}

func TestRunRefreshMissingSubjectKeepsID(t *testing.T) {
	ledger := &fakeLedger{entries: map[string]stores.RefreshEntry{"j1": {Subject: "U1"}}}
	deps := refreshDeps(ledger)
	deps.SubjectExists = func(context.Context, string, bool) (bool, error) { return false, nil }

	if res := RunRefresh(context.Background(), "good", deps); res.Failure != RefreshFailureSubjectMissing {
		t.Fatalf("expected missing subject, got %v", res.Failure)
	}
	if len(ledger.entries) != 1 {
		t.Fatal("expected ledger untouched")
	}
}
