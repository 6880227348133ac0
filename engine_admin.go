package codepass

import (
	"context"

	"github.com/MrEthical07/codepass/internal/flows"
)

// AdminLogin checks an administrator's password and mints an admin pair.
// Unknown login ids and wrong passwords both yield ErrInvalidCredentials.
func (e *Engine) AdminLogin(ctx context.Context, loginID, password string) (TokenPair, error) {
	if !e.ready() || e.admins == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.AdminLogin(ctx, loginID, password)
	role := roleOf(true)

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		return TokenPair{}, e.limiterError(ctx, "login", res.Err, ErrLoginRateLimited)
	case flows.LoginFailureInvalidInput, flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricAdminLoginFailure)
		e.emitAudit(ctx, auditEventAdminLoginFailure, false, res.AdminID, role, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"login_id": loginID}
		})
		return TokenPair{}, ErrInvalidCredentials
	case flows.LoginFailureHash:
		e.metricInc(MetricAdminLoginFailure)
		e.logger.ErrorContext(ctx, "codepass: stored admin hash unreadable", "subject", res.AdminID, "error", res.Err)
		e.emitAudit(ctx, auditEventAdminLoginFailure, false, res.AdminID, role, ErrInvalidCredentials, nil)
		return TokenPair{}, ErrInvalidCredentials
	case flows.LoginFailureDirectory:
		e.metricInc(MetricAdminLoginFailure)
		e.metricInc(MetricDirectoryUnavailable)
		e.logger.ErrorContext(ctx, "codepass: admin lookup failed", "error", res.Err)
		return TokenPair{}, ErrDirectoryUnavailable
	default:
		e.metricInc(MetricAdminLoginFailure)
		return TokenPair{}, e.issueError(ctx, res.AdminID, res.Err)
	}

	e.metricInc(MetricAdminLoginSuccess)
	e.emitAudit(ctx, auditEventAdminLoginSuccess, true, res.AdminID, role, nil, nil)
	return toTokenPair(res.Pair), nil
}
