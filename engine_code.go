package codepass

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/codepass/internal/flows"
)

// IssueCode stores a fresh numeric code bound to payload. The code is
// redeemable once until Code.TTL elapses.
func (e *Engine) IssueCode(ctx context.Context, payload CodePayload) (CodeDescriptor, error) {
	if !e.ready() {
		return CodeDescriptor{}, ErrEngineNotReady
	}

	res := e.flows.Issue(ctx, flows.IssueRequest{
		Guardians:  payload.Guardians,
		Visitors:   payload.Visitors,
		ScheduleID: payload.ScheduleID,
	})
	for i := 0; i < res.Collisions; i++ {
		e.metricInc(MetricCodeCollision)
	}

	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureInvalidPayload:
		e.metricInc(MetricCodeIssueFailure)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, "", "", ErrInvalidPayload, nil)
		return CodeDescriptor{}, ErrInvalidPayload
	case flows.IssueFailureRateLimited:
		return CodeDescriptor{}, e.limiterError(ctx, "issue", res.Err, ErrCodeRateLimited)
	case flows.IssueFailureExhausted:
		e.metricInc(MetricCodeExhausted)
		e.logger.WarnContext(ctx, "codepass: code keyspace exhausted", "attempts", res.Collisions)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, "", "", ErrExhaustedKeyspace, nil)
		return CodeDescriptor{}, ErrExhaustedKeyspace
	case flows.IssueFailureStore:
		e.metricInc(MetricCodeIssueFailure)
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "codepass: code store write failed", "error", res.Err)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, "", "", ErrStoreUnavailable, nil)
		return CodeDescriptor{}, ErrStoreUnavailable
	case flows.IssueFailureDirectory:
		e.metricInc(MetricCodeIssueFailure)
		e.metricInc(MetricDirectoryUnavailable)
		e.logger.ErrorContext(ctx, "codepass: registrant lookup failed during issue", "error", res.Err)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, "", "", ErrDirectoryUnavailable, nil)
		return CodeDescriptor{}, ErrDirectoryUnavailable
	default:
		e.metricInc(MetricCodeIssueFailure)
		e.logger.ErrorContext(ctx, "codepass: code generation failed", "error", res.Err)
		return CodeDescriptor{}, fmt.Errorf("codepass: generate code: %w", res.Err)
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"schedule_id": strconv.FormatInt(payload.ScheduleID, 10),
			"expires_at":  res.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})

	return CodeDescriptor{
		Code:      res.Code,
		Payload:   payload,
		CreatedAt: res.CreatedAt,
		ExpiresAt: res.ExpiresAt,
	}, nil
}

// Verify redeems code. Every denial is reported as ErrVerificationFailed so
// callers cannot tell an unknown code from a replayed one. Outages surface
// as ErrStoreUnavailable or ErrDirectoryUnavailable and are never denials.
func (e *Engine) Verify(ctx context.Context, code string) (VerifyResult, error) {
	res, err := e.VerifyDetailed(ctx, code)
	if errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeAlreadyConsumed) {
		return VerifyResult{}, ErrVerificationFailed
	}
	return res, err
}

// VerifyDetailed is Verify with the denial reason kept: ErrCodeNotFound for
// unknown, malformed or expired codes and ErrCodeAlreadyConsumed for replays.
// It is meant for in-process callers; transports should use Verify.
func (e *Engine) VerifyDetailed(ctx context.Context, code string) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}
	defer e.observeSince(MetricVerifyLatency, time.Now())

	res := e.flows.Verify(ctx, code)

	switch res.Failure {
	case flows.VerifyFailureNone:
	case flows.VerifyFailureRateLimited:
		return VerifyResult{}, e.limiterError(ctx, "verify", res.Err, ErrVerifyRateLimited)
	case flows.VerifyFailureMalformed, flows.VerifyFailureNotFound:
		e.metricInc(MetricVerifyFailure)
		e.logger.DebugContext(ctx, "codepass: verification denied", "reason", "not_found")
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, "", "", ErrCodeNotFound, nil)
		return VerifyResult{}, ErrCodeNotFound
	case flows.VerifyFailureAlreadyConsumed:
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricVerifyReplay)
		e.logger.InfoContext(ctx, "codepass: verification code replayed")
		e.emitAudit(ctx, auditEventCodeReplay, false, "", "", ErrCodeAlreadyConsumed, nil)
		return VerifyResult{}, ErrCodeAlreadyConsumed
	case flows.VerifyFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "codepass: code store consume failed", "error", res.Err)
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, "", "", ErrStoreUnavailable, nil)
		return VerifyResult{}, ErrStoreUnavailable
	case flows.VerifyFailureDirectory:
		// The code is already consumed at this point and stays consumed.
		e.metricInc(MetricDirectoryUnavailable)
		e.logger.ErrorContext(ctx, "codepass: registrant create failed after consume",
			"subject", res.Record.ID, "error", res.Err)
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, res.Record.ID, roleOf(false), ErrDirectoryUnavailable, nil)
		return VerifyResult{}, ErrDirectoryUnavailable
	case flows.VerifyFailureIssue:
		e.reportReservation(ctx, res)
		err := e.issueError(ctx, res.Registrant.RandomID, res.Err)
		e.emitAudit(ctx, auditEventCodeVerifyFailure, false, res.Registrant.RandomID, roleOf(false), err, nil)
		return VerifyResult{}, err
	}

	e.reportReservation(ctx, res)
	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventCodeVerified, true, res.Registrant.RandomID, roleOf(false), nil, nil)

	return VerifyResult{
		Matched: true,
		Payload: CodePayload{
			Guardians:  int(res.Record.Guardians),
			Visitors:   int(res.Record.Visitors),
			ScheduleID: res.Record.ScheduleID,
		},
		Registrant: Registrant{
			RandomID:   res.Registrant.RandomID,
			Guardians:  res.Registrant.Guardians,
			Visitors:   res.Registrant.Visitors,
			ScheduleID: res.Registrant.ScheduleID,
			CreatedAt:  res.Registrant.CreatedAt,
		},
		Tokens: toTokenPair(res.Pair),
	}, nil
}

func (e *Engine) reportReservation(ctx context.Context, res flows.VerifyResult) {
	if res.ReservationErr == nil {
		return
	}
	e.metricInc(MetricReservationFailure)
	e.logger.WarnContext(ctx, "codepass: pre-reservation request failed",
		"subject", res.Registrant.RandomID,
		"schedule_id", res.Record.ScheduleID,
		"error", res.ReservationErr)
	e.emitAudit(ctx, auditEventReservationFailed, false, res.Registrant.RandomID, roleOf(false), nil, func() map[string]string {
		return map[string]string{
			"schedule_id": strconv.FormatInt(res.Record.ScheduleID, 10),
		}
	})
}
