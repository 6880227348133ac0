package codepass

import (
	"errors"
	"time"

	"github.com/MrEthical07/codepass/internal/stores"
)

// Code store sentinels. Custom CodeStore implementations must return these
// values so the engine can tell a collision or a replay from an outage.
var (
	ErrCodeNotFound        = stores.ErrCodeNotFound
	ErrCodeAlreadyConsumed = stores.ErrCodeAlreadyConsumed
	ErrCodeExists          = stores.ErrCodeExists
)

var (
	// ErrVerificationFailed is the only denial Verify reports to callers,
	// whatever the underlying reason.
	ErrVerificationFailed = errors.New("invalid verification code")
	ErrExhaustedKeyspace  = errors.New("verification code keyspace exhausted")
	ErrInvalidPayload     = errors.New("invalid code payload")
	ErrCodeRateLimited    = errors.New("code issuance rate limited")
	ErrVerifyRateLimited  = errors.New("code verification rate limited")

	// ErrTokenInvalid is the only denial Validate reports to callers.
	ErrTokenInvalid     = errors.New("token invalid")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenWrongKind   = errors.New("token kind mismatch")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshReuse        = errors.New("refresh token reuse detected")
	ErrRefreshRateLimited  = errors.New("refresh rate limited")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginRateLimited   = errors.New("login rate limited")
	ErrAdminNotFound      = errors.New("admin not found")

	// ErrStoreUnavailable reports a Redis or code store outage. It is never
	// turned into a denial.
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrEngineNotReady       = errors.New("engine not initialized")
)

// RetryAfterError carries one of the rate-limit sentinels together with the
// time left in the window that rejected the call.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter reports how long a rate-limited caller should wait.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		return ra.After, true
	}
	return 0, false
}
