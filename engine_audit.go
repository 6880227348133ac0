package codepass

import (
	"context"
	"errors"
)

const (
	auditEventCodeIssued           = "code_issued"
	auditEventCodeIssueFailure     = "code_issue_failure"
	auditEventCodeVerified         = "code_verified"
	auditEventCodeVerifyFailure    = "code_verify_failure"
	auditEventCodeReplay           = "code_replay"
	auditEventReservationFailed    = "reservation_failed"
	auditEventTokenRejected        = "token_rejected"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventAdminLoginSuccess    = "admin_login_success"
	auditEventAdminLoginFailure    = "admin_login_failure"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// criticalAuditEvents signal an attack in progress and get a grace period on
// a full audit buffer.
var criticalAuditEvents = []string{
	auditEventCodeReplay,
	auditEventRefreshReuseDetected,
	auditEventAdminLoginFailure,
}

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrCodeNotFound         AuditErrorCode = "code_not_found"
	auditErrCodeConsumed         AuditErrorCode = "code_consumed"
	auditErrInvalidPayload       AuditErrorCode = "invalid_payload"
	auditErrKeyspaceExhausted    AuditErrorCode = "keyspace_exhausted"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrRefreshReuse         AuditErrorCode = "refresh_reuse"
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrStoreUnavailable     AuditErrorCode = "store_unavailable"
	auditErrDirectoryUnavailable AuditErrorCode = "directory_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	role string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		Role:      role,
		IP:        clientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCodeNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, ErrCodeAlreadyConsumed):
		return auditErrCodeConsumed
	case errors.Is(err, ErrInvalidPayload):
		return auditErrInvalidPayload
	case errors.Is(err, ErrExhaustedKeyspace):
		return auditErrKeyspaceExhausted
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenWrongKind),
		errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCodeRateLimited),
		errors.Is(err, ErrVerifyRateLimited),
		errors.Is(err, ErrRefreshRateLimited),
		errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrDirectoryUnavailable):
		return auditErrDirectoryUnavailable
	default:
		return auditErrInternal
	}
}
