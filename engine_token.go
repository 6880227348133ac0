package codepass

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/codepass/internal/flows"
)

// tokenReason names the internal cause behind a uniform token denial.
func tokenReason(kind flows.ValidateFailureKind) error {
	switch kind {
	case flows.ValidateFailureSignature:
		return ErrInvalidSignature
	case flows.ValidateFailureExpired:
		return ErrTokenExpired
	case flows.ValidateFailureMalformed:
		return ErrTokenMalformed
	case flows.ValidateFailureWrongKind:
		return ErrTokenWrongKind
	default:
		return ErrTokenInvalid
	}
}

// Validate verifies an access token offline. Any failure is reported as
// ErrTokenInvalid; the precise reason only reaches logs and audit.
func (e *Engine) Validate(ctx context.Context, token string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	defer e.observeSince(MetricValidateLatency, time.Now())

	res := e.flows.Validate(ctx, token)
	if res.Failure != flows.ValidateFailureNone {
		return nil, e.rejectToken(ctx, res)
	}

	e.metricInc(MetricValidateSuccess)
	return toClaims(res.Claims), nil
}

// ValidateExistence validates token and reports whether its subject is still
// present in the directory for its role.
func (e *Engine) ValidateExistence(ctx context.Context, token string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	defer e.observeSince(MetricValidateLatency, time.Now())

	res := e.flows.ValidateExistence(ctx, token)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureDirectory:
		e.metricInc(MetricDirectoryUnavailable)
		e.logger.ErrorContext(ctx, "codepass: existence lookup failed",
			"subject", res.Claims.Subject, "role", roleOf(res.Claims.Admin), "error", res.Err)
		return false, ErrDirectoryUnavailable
	default:
		return false, e.rejectToken(ctx, res)
	}

	e.metricInc(MetricValidateSuccess)
	return res.Exists, nil
}

// Authenticate validates an access token taken from a request header and
// returns its subject.
func (e *Engine) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.SubjectID, nil
}

func (e *Engine) rejectToken(ctx context.Context, res flows.ValidateResult) error {
	reason := tokenReason(res.Failure)
	e.metricInc(MetricValidateFailure)
	e.logger.DebugContext(ctx, "codepass: token rejected", "reason", reason.Error(), "error", res.Err)
	e.emitAudit(ctx, auditEventTokenRejected, false, "", "", reason, func() map[string]string {
		return map[string]string{"reason": reason.Error()}
	})
	return ErrTokenInvalid
}

// Reissue exchanges a refresh token for a new pair. With rotation on each
// refresh token works once; a second presentation fails with an error
// matching both ErrInvalidRefreshToken and ErrRefreshReuse.
func (e *Engine) Reissue(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	role := roleOf(res.IsAdmin)

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureRateLimited:
		return TokenPair{}, e.limiterError(ctx, "refresh", res.Err, ErrRefreshRateLimited)
	case flows.RefreshFailureInvalid:
		reason := tokenReason(res.TokenReason)
		e.metricInc(MetricRefreshFailure)
		e.logger.DebugContext(ctx, "codepass: refresh token rejected", "reason", reason.Error(), "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidRefreshToken, func() map[string]string {
			return map[string]string{"reason": reason.Error()}
		})
		return TokenPair{}, ErrInvalidRefreshToken
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.WarnContext(ctx, "codepass: refresh token reuse detected", "subject", res.Subject, "role", role)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.Subject, role, ErrRefreshReuse, nil)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, ErrRefreshReuse)
	case flows.RefreshFailureMismatch, flows.RefreshFailureSubjectMissing:
		e.metricInc(MetricRefreshFailure)
		e.logger.WarnContext(ctx, "codepass: refresh denied", "subject", res.Subject, "role", role, "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, role, ErrInvalidRefreshToken, nil)
		return TokenPair{}, ErrInvalidRefreshToken
	case flows.RefreshFailureLedger:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "codepass: refresh ledger unavailable", "error", res.Err)
		return TokenPair{}, ErrStoreUnavailable
	case flows.RefreshFailureDirectory:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricDirectoryUnavailable)
		e.logger.ErrorContext(ctx, "codepass: refresh existence lookup failed", "subject", res.Subject, "error", res.Err)
		return TokenPair{}, ErrDirectoryUnavailable
	default:
		e.metricInc(MetricRefreshFailure)
		if res.RestoreErr != nil {
			e.logger.ErrorContext(ctx, "codepass: refresh token id not restored after failed issuance",
				"subject", res.Subject, "error", res.RestoreErr)
		}
		return TokenPair{}, e.issueError(ctx, res.Subject, res.Err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, role, nil, nil)
	return toTokenPair(res.Pair), nil
}
