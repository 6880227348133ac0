package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/codepass/internal/stores"
)

// IssueFailureKind classifies code issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidPayload
	IssueFailureRateLimited
	IssueFailureGenerate
	IssueFailureExhausted
	IssueFailureStore
	IssueFailureDirectory
)

// IssueRequest is the payload bound to a new code.
type IssueRequest struct {
	Guardians  int
	Visitors   int
	ScheduleID int64
}

// IssueResult carries the stored code or failure metadata.
type IssueResult struct {
	Failure    IssueFailureKind
	Err        error
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Collisions int
}

type IssueRateLimiter interface {
	CheckIssue(ctx context.Context, ip string) error
}

type CodeWriter interface {
	Put(ctx context.Context, record *stores.CodeRecord, ttl time.Duration) error
}

// IssueDeps captures code issuance dependencies.
type IssueDeps struct {
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	NewCode             func() (string, error)
	TTL                 time.Duration
	MaxAttempts         int
	MaxGuardians        int
	MaxVisitors         int
	RateLimiter         IssueRateLimiter
	Store               CodeWriter
	// Claimed reports whether a registrant already holds code as its id.
	// Such codes are never handed out again.
	Claimed func(ctx context.Context, code string) (bool, error)
}

// ValidIssueRequest reports whether req can be bound to a code.
func ValidIssueRequest(req IssueRequest, maxGuardians, maxVisitors int) bool {
	if req.Guardians < 1 || req.Visitors < 0 || req.ScheduleID < 0 {
		return false
	}
	if maxGuardians > 0 && req.Guardians > maxGuardians {
		return false
	}
	if maxVisitors > 0 && req.Visitors > maxVisitors {
		return false
	}
	return req.Guardians <= 0xFFFF && req.Visitors <= 0xFFFF
}

// RunIssue generates a fresh code, retrying on collision with a live code, a
// consumed tombstone or a code already claimed by a registrant, and stores it
// with the request payload.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	if !ValidIssueRequest(req, deps.MaxGuardians, deps.MaxVisitors) {
		return IssueResult{Failure: IssueFailureInvalidPayload, Err: errors.New("invalid code payload")}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckIssue(ctx, deps.ClientIPFromContext(ctx)); err != nil {
			return IssueResult{Failure: IssueFailureRateLimited, Err: err}
		}
	}

	now := deps.Now()
	expiresAt := now.Add(deps.TTL)

	collisions := 0
	for attempt := 0; attempt < deps.MaxAttempts; attempt++ {
		code, err := deps.NewCode()
		if err != nil {
			return IssueResult{Failure: IssueFailureGenerate, Err: err}
		}

		if deps.Claimed != nil {
			claimed, err := deps.Claimed(ctx, code)
			if err != nil {
				return IssueResult{Failure: IssueFailureDirectory, Err: err, Collisions: collisions}
			}
			if claimed {
				collisions++
				continue
			}
		}

		err = deps.Store.Put(ctx, &stores.CodeRecord{
			ID:         code,
			Guardians:  uint16(req.Guardians),
			Visitors:   uint16(req.Visitors),
			ScheduleID: req.ScheduleID,
			CreatedAt:  now.UnixMilli(),
			ExpiresAt:  expiresAt.UnixMilli(),
		}, deps.TTL)
		if err == nil {
			return IssueResult{
				Failure:    IssueFailureNone,
				Code:       code,
				CreatedAt:  now,
				ExpiresAt:  expiresAt,
				Collisions: collisions,
			}
		}
		if !errors.Is(err, stores.ErrCodeExists) {
			return IssueResult{Failure: IssueFailureStore, Err: err, Collisions: collisions}
		}
		collisions++
	}

	return IssueResult{
		Failure:    IssueFailureExhausted,
		Err:        stores.ErrCodeExists,
		Collisions: collisions,
	}
}
