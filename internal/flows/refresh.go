package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/codepass/internal/stores"
	"github.com/MrEthical07/codepass/jwt"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRateLimited
	RefreshFailureInvalid
	RefreshFailureReuse
	RefreshFailureMismatch
	RefreshFailureLedger
	RefreshFailureSubjectMissing
	RefreshFailureDirectory
	RefreshFailureIssue
)

// RefreshResult carries the new pair or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	TokenReason ValidateFailureKind
	Subject     string
	IsAdmin     bool
	Pair        jwt.Pair
	// RestoreErr is set when a redeemed token id could not be put back after
	// a failed issuance.
	RestoreErr error
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, ip string) error
}

type RefreshLedger interface {
	Redeem(ctx context.Context, jti string) (stores.RefreshEntry, error)
	Save(ctx context.Context, jti string, entry stores.RefreshEntry, ttl time.Duration) error
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	ClientIPFromContext func(context.Context) string
	RateLimiter         RefreshRateLimiter
	Parse               func(string, jwt.Kind) (*jwt.Claims, error)
	Now                 func() time.Time
	RotateOnUse         bool
	Ledger              RefreshLedger
	SubjectExists       func(ctx context.Context, subject string, isAdmin bool) (bool, error)
	IssuePair           PairIssuer
}

// RunRefresh exchanges a refresh token for a new pair. Lookups that can fail
// on an outage run before the token id is redeemed, and a redeemed id is put
// back when issuance fails, so a retry after an outage is not seen as reuse.
// With rotation on, a second exchange of the same token fails as reuse.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, deps.ClientIPFromContext(ctx)); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err}
		}
	}

	claims, err := deps.Parse(refreshToken, jwt.KindRefresh)
	if err != nil {
		return RefreshResult{
			Failure:     RefreshFailureInvalid,
			Err:         err,
			TokenReason: ClassifyTokenError(err),
		}
	}

	subject := claims.Subject
	isAdmin := claims.Admin

	if deps.SubjectExists != nil {
		exists, err := deps.SubjectExists(ctx, subject, isAdmin)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureDirectory, Err: err, Subject: subject, IsAdmin: isAdmin}
		}
		if !exists {
			return RefreshResult{
				Failure: RefreshFailureSubjectMissing,
				Err:     errors.New("refresh subject no longer exists"),
				Subject: subject,
				IsAdmin: isAdmin,
			}
		}
	}

	var redeemed *stores.RefreshEntry
	if deps.RotateOnUse {
		entry, err := deps.Ledger.Redeem(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, stores.ErrRefreshNotFound) {
				return RefreshResult{Failure: RefreshFailureReuse, Err: err, Subject: subject, IsAdmin: isAdmin}
			}
			return RefreshResult{Failure: RefreshFailureLedger, Err: err, Subject: subject, IsAdmin: isAdmin}
		}
		if entry.Subject != subject || entry.IsAdmin != isAdmin {
			return RefreshResult{
				Failure: RefreshFailureMismatch,
				Err:     errors.New("refresh ledger entry does not match token"),
				Subject: subject,
				IsAdmin: isAdmin,
			}
		}
		redeemed = &entry
	}

	pair, err := deps.IssuePair(ctx, subject, isAdmin)
	if err != nil {
		res := RefreshResult{Failure: RefreshFailureIssue, Err: err, Subject: subject, IsAdmin: isAdmin}
		if redeemed != nil {
			res.RestoreErr = restoreRefresh(ctx, deps, claims, *redeemed)
		}
		return res
	}

	return RefreshResult{Subject: subject, IsAdmin: isAdmin, Pair: pair}
}

// restoreRefresh puts a redeemed id back for the rest of its token lifetime.
func restoreRefresh(ctx context.Context, deps RefreshDeps, claims *jwt.Claims, entry stores.RefreshEntry) error {
	if claims.ExpiresAt == nil {
		return errors.New("refresh token has no expiry")
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	ttl := claims.ExpiresAt.Time.Sub(now())
	if ttl <= 0 {
		return nil
	}
	return deps.Ledger.Save(ctx, claims.ID, entry, ttl)
}
