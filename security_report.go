package codepass

import "github.com/MrEthical07/codepass/internal/security"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport mirrors the Argon2 parameters in a SecurityReport.
type PasswordConfigReport = security.PasswordReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		CodeDigits:            cfg.Code.Digits,
		CodeTTL:               cfg.Code.TTL,
		RotateOnUse:           cfg.Refresh.RotateOnUse,
		RequireSubjectExists:  cfg.Refresh.RequireSubjectExists,
		AdminLoginEnabled:     e.admins != nil,
		ReservationsEnabled:   e.reservations != nil,
		AuditEnabled:          cfg.Audit.Enabled,
		EnableIssueThrottle:   cfg.Throttle.EnableIssueThrottle,
		MaxIssuePerIP:         cfg.Throttle.MaxIssuePerIP,
		EnableVerifyThrottle:  cfg.Throttle.EnableVerifyThrottle,
		MaxVerifyPerIP:        cfg.Throttle.MaxVerifyPerIP,
		VerifyWindow:          cfg.Throttle.VerifyWindow,
		EnableRefreshThrottle: cfg.Throttle.EnableRefreshThrottle,
		MaxRefreshPerIP:       cfg.Throttle.MaxRefreshPerIP,
		EnableLoginThrottle:   cfg.Throttle.EnableLoginThrottle,
		MaxLoginFailures:      cfg.Throttle.MaxLoginFailures,
		LoginCooldown:         cfg.Throttle.LoginCooldown,
	})
}
