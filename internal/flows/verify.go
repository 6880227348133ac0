package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/codepass/internal/stores"
	"github.com/MrEthical07/codepass/jwt"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureRateLimited
	VerifyFailureMalformed
	VerifyFailureNotFound
	VerifyFailureAlreadyConsumed
	VerifyFailureStore
	VerifyFailureDirectory
	VerifyFailureIssue
)

// RegistrantRecord is the flow-local registrant model.
type RegistrantRecord struct {
	RandomID   string
	Guardians  int
	Visitors   int
	ScheduleID int64
	CreatedAt  time.Time
}

// VerifyResult carries the matched record, the resolved registrant and the
// issued pair, or failure metadata.
type VerifyResult struct {
	Failure        VerifyFailureKind
	Err            error
	Record         *stores.CodeRecord
	Registrant     RegistrantRecord
	Pair           jwt.Pair
	ReservationErr error
}

// Matched reports whether the code was consumed by this call.
func (r VerifyResult) Matched() bool {
	return r.Record != nil
}

type VerifyRateLimiter interface {
	CheckVerify(ctx context.Context, ip string) error
}

type CodeConsumer interface {
	Consume(ctx context.Context, id string) (*stores.CodeRecord, error)
}

// VerifyDeps captures verification dependencies.
type VerifyDeps struct {
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	ValidCode           func(string) bool
	RateLimiter         VerifyRateLimiter
	Store               CodeConsumer
	CreateRegistrant    func(context.Context, RegistrantRecord) (RegistrantRecord, error)
	ScheduleReservation func(context.Context, RegistrantRecord) error
	IssuePair           PairIssuer
}

// RunVerify consumes code and, on a match, resolves the registrant, requests
// the pre-reservation and issues a token pair. A failed reservation is
// reported in ReservationErr and never fails the verification.
func RunVerify(ctx context.Context, code string, deps VerifyDeps) VerifyResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckVerify(ctx, deps.ClientIPFromContext(ctx)); err != nil {
			return VerifyResult{Failure: VerifyFailureRateLimited, Err: err}
		}
	}

	if deps.ValidCode != nil && !deps.ValidCode(code) {
		return VerifyResult{Failure: VerifyFailureMalformed, Err: stores.ErrCodeNotFound}
	}

	record, err := deps.Store.Consume(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrCodeNotFound):
			return VerifyResult{Failure: VerifyFailureNotFound, Err: err}
		case errors.Is(err, stores.ErrCodeAlreadyConsumed):
			return VerifyResult{Failure: VerifyFailureAlreadyConsumed, Err: err}
		default:
			return VerifyResult{Failure: VerifyFailureStore, Err: err}
		}
	}

	registrant, err := deps.CreateRegistrant(ctx, RegistrantRecord{
		RandomID:   record.ID,
		Guardians:  int(record.Guardians),
		Visitors:   int(record.Visitors),
		ScheduleID: record.ScheduleID,
		CreatedAt:  deps.Now(),
	})
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDirectory, Err: err, Record: record}
	}

	result := VerifyResult{Record: record, Registrant: registrant}

	// The reservation carries the payload bound to this code, not whatever
	// the directory already held for the id.
	if record.ScheduleID != 0 && deps.ScheduleReservation != nil {
		result.ReservationErr = deps.ScheduleReservation(ctx, RegistrantRecord{
			RandomID:   registrant.RandomID,
			Guardians:  int(record.Guardians),
			Visitors:   int(record.Visitors),
			ScheduleID: record.ScheduleID,
			CreatedAt:  registrant.CreatedAt,
		})
	}

	pair, err := deps.IssuePair(ctx, registrant.RandomID, false)
	if err != nil {
		result.Failure = VerifyFailureIssue
		result.Err = err
		return result
	}

	result.Pair = pair
	return result
}
