package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/codepass/jwt"
)

// LoginFailureKind classifies admin login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidInput
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureDirectory
	LoginFailureHash
	LoginFailureIssue
)

// AdminRecord is the flow-local administrator model.
type AdminRecord struct {
	AdminID      string
	LoginID      string
	PasswordHash string
}

// LoginResult carries the admin pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	AdminID string
	Pair    jwt.Pair
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, loginID, ip string) error
	IncrementLogin(ctx context.Context, loginID, ip string) error
	ResetLogin(ctx context.Context, loginID, ip string) error
}

// LoginDeps captures admin login dependencies.
type LoginDeps struct {
	ClientIPFromContext func(context.Context) string
	RateLimiter         LoginRateLimiter
	FindAdmin           func(context.Context, string) (AdminRecord, error)
	AdminNotFound       error
	VerifyPassword      func(password, encodedHash string) (bool, error)
	// DummyHash is verified against when the login id is unknown, so both
	// outcomes cost one hash evaluation.
	DummyHash string
	IssuePair PairIssuer
	Warn      func(string, ...any)
}

// RunAdminLogin authenticates an administrator by login id and password.
func RunAdminLogin(ctx context.Context, loginID, password string, deps LoginDeps) LoginResult {
	if loginID == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidInput, Err: errors.New("login id and password are required")}
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, loginID, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	admin, err := deps.FindAdmin(ctx, loginID)
	if err != nil {
		if deps.AdminNotFound != nil && errors.Is(err, deps.AdminNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			recordLoginFailure(ctx, loginID, ip, deps)
			return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureDirectory, Err: err}
	}

	ok, err := deps.VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureHash, Err: err, AdminID: admin.AdminID}
	}
	if !ok {
		recordLoginFailure(ctx, loginID, ip, deps)
		return LoginResult{
			Failure: LoginFailureInvalidCredentials,
			Err:     errors.New("password mismatch"),
			AdminID: admin.AdminID,
		}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, loginID, ip); err != nil && deps.Warn != nil {
			deps.Warn("codepass: login limiter reset failed", "error", err)
		}
	}

	pair, err := deps.IssuePair(ctx, admin.AdminID, true)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, AdminID: admin.AdminID}
	}

	return LoginResult{AdminID: admin.AdminID, Pair: pair}
}

func recordLoginFailure(ctx context.Context, loginID, ip string, deps LoginDeps) {
	if deps.RateLimiter == nil {
		return
	}
	if err := deps.RateLimiter.IncrementLogin(ctx, loginID, ip); err != nil && deps.Warn != nil {
		deps.Warn("codepass: login limiter increment failed", "error", err)
	}
}
