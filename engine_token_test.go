package codepass

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestValidateRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "246810")

	claims, err := env.engine.Validate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.SubjectID != reg.RandomID || claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(env.clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
	if claims.TokenID == "" {
		t.Fatal("expected a token id")
	}
}

func tamperSignature(token string) string {
	i := strings.LastIndexByte(token, '.')
	sig := []byte(token[i+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	return token[:i+1] + string(sig)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "246811")

	_, err := env.engine.Validate(context.Background(), tamperSignature(pair.AccessToken))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Fatal("expected the reason to stay internal")
	}
}

func TestValidateRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "246812")

	if _, err := env.engine.Validate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to be refused as access, got %v", err)
	}
	if _, err := env.engine.Validate(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected garbage to be refused, got %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "246813")

	env.clock.Advance(6 * time.Minute)
	if _, err := env.engine.Validate(context.Background(), pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to be refused, got %v", err)
	}
}

func TestReissueRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "135790")

	if _, err := env.engine.Reissue(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestReissueAfterAccessExpiryKeepsSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "135791")
	ctx := context.Background()

	env.clock.Advance(10 * time.Minute)
	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected old access token to be expired, got %v", err)
	}

	next, err := env.engine.Reissue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Reissue failed: %v", err)
	}
	claims, err := env.engine.Validate(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("Validate of reissued token failed: %v", err)
	}
	if claims.SubjectID != reg.RandomID || claims.IsAdmin {
		t.Fatalf("expected subject %q kept, got %+v", reg.RandomID, claims)
	}
}

func TestReissueReuseDetected(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "135792")
	ctx := context.Background()

	next, err := env.engine.Reissue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Reissue failed: %v", err)
	}

	_, err = env.engine.Reissue(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrInvalidRefreshToken) || !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse to be detected, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected reuse metric 1, got %d", got)
	}

	if _, err := env.engine.Reissue(ctx, next.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token should still work, got %v", err)
	}
}

func TestReissueConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "135793")
	ctx := context.Background()

	const workers = 20
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Reissue(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRefreshReuse):
		default:
			t.Fatalf("unexpected reissue error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestReissueWithoutRotation(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Refresh.RotateOnUse = false })
	_, pair := env.verifiedPair(t, "135794")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Reissue(ctx, pair.RefreshToken); err != nil {
			t.Fatalf("Reissue %d failed: %v", i, err)
		}
	}
}

func TestReissueRemovedSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "135795")

	env.directory.remove(reg.RandomID)
	if _, err := env.engine.Reissue(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestReissueLedgerUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.verifiedPair(t, "135796")

	env.mr.Close()
	if _, err := env.engine.Reissue(context.Background(), pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestValidateExistence(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "112233")
	ctx := context.Background()

	exists, err := env.engine.ValidateExistence(ctx, pair.AccessToken)
	if err != nil || !exists {
		t.Fatalf("expected subject to exist, exists=%v err=%v", exists, err)
	}

	env.directory.remove(reg.RandomID)
	exists, err = env.engine.ValidateExistence(ctx, pair.AccessToken)
	if err != nil || exists {
		t.Fatalf("expected subject to be gone, exists=%v err=%v", exists, err)
	}

	env.directory.setErr(errBackendDown)
	if _, err := env.engine.ValidateExistence(ctx, pair.AccessToken); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}

	if _, err := env.engine.ValidateExistence(ctx, tamperSignature(pair.AccessToken)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "445566")

	subject, err := env.engine.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if subject != reg.RandomID {
		t.Fatalf("expected subject %q, got %q", reg.RandomID, subject)
	}
}

func TestReissueRetryAfterDirectoryOutage(t *testing.T) {
	env := newTestEnv(t, nil)
	reg, pair := env.verifiedPair(t, "246810")
	ctx := context.Background()

	env.directory.setErr(errBackendDown)
	if _, err := env.engine.Reissue(ctx, pair.RefreshToken); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}

	env.directory.setErr(nil)
	next, err := env.engine.Reissue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("expected retry after recovery to succeed, got %v", err)
	}
	claims, err := env.engine.Validate(ctx, next.AccessToken)
	if err != nil || claims.SubjectID != reg.RandomID {
		t.Fatalf("expected subject %q, got %+v (%v)", reg.RandomID, claims, err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 0 {
		t.Fatalf("expected no reuse alert, got %d", got)
	}

	if _, err := env.engine.Reissue(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected the old token to be spent after the successful retry, got %v", err)
	}
}
