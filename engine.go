package codepass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/codepass/internal"
	internalaudit "github.com/MrEthical07/codepass/internal/audit"
	"github.com/MrEthical07/codepass/internal/flows"
	"github.com/MrEthical07/codepass/internal/rate"
	"github.com/MrEthical07/codepass/internal/stores"
	"github.com/MrEthical07/codepass/jwt"
	"github.com/MrEthical07/codepass/password"
)

// Engine issues verification codes and the token pairs they unlock. It is
// safe for concurrent use once built.
type Engine struct {
	config Config

	codes        CodeStore
	directory    Directory
	admins       AdminDirectory
	reservations Reservations

	limiter      *rate.Limiter
	ledger       *stores.RefreshLedger
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	dummyHash    string

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	newCode func() (string, error)

	flows flows.Service
}

// Close flushes queued audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
	for event, n := range e.audit.DroppedByType() {
		e.logger.Warn("codepass: audit events dropped", "event_type", event, "count", n)
	}
}

// AuditDroppedByType breaks AuditDropped down by audit event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) buildFlows() flows.Service {
	cfg := e.config
	digits := cfg.Code.Digits

	deps := flows.Deps{
		Issue: flows.IssueDeps{
			ClientIPFromContext: clientIPFromContext,
			Now:                 e.now,
			NewCode:             func() (string, error) { return e.newCode() },
			TTL:                 cfg.Code.TTL,
			MaxAttempts:         cfg.Code.MaxGenerateAttempts,
			MaxGuardians:        cfg.Code.MaxGuardians,
			MaxVisitors:         cfg.Code.MaxVisitors,
			RateLimiter:         e.limiter,
			Store:               e.codes,
			Claimed:             e.directory.RegistrantExists,
		},
		Verify: flows.VerifyDeps{
			ClientIPFromContext: clientIPFromContext,
			Now:                 e.now,
			ValidCode:           func(code string) bool { return internal.IsCode(code, digits) },
			RateLimiter:         e.limiter,
			Store:               e.codes,
			CreateRegistrant:    e.createRegistrant,
			IssuePair:           e.issuePair,
		},
		Validate: flows.ValidateDeps{
			Parse:            e.jwtManager.Parse,
			RegistrantExists: e.directory.RegistrantExists,
		},
		Refresh: flows.RefreshDeps{
			ClientIPFromContext: clientIPFromContext,
			RateLimiter:         e.limiter,
			Parse:               e.jwtManager.Parse,
			Now:                 e.now,
			RotateOnUse:         cfg.Refresh.RotateOnUse,
			IssuePair:           e.issuePair,
		},
		Login: flows.LoginDeps{
			ClientIPFromContext: clientIPFromContext,
			RateLimiter:         e.limiter,
			FindAdmin:           e.findAdmin,
			AdminNotFound:       ErrAdminNotFound,
			VerifyPassword:      e.passwordHash.Verify,
			DummyHash:           e.dummyHash,
			IssuePair:           e.issuePair,
			Warn:                e.logger.Warn,
		},
	}

	if e.reservations != nil {
		deps.Verify.ScheduleReservation = e.scheduleReservation
	}
	if e.admins != nil {
		deps.Validate.AdminExists = e.admins.AdminExists
	}
	if e.ledger != nil {
		deps.Refresh.Ledger = e.ledger
	}
	if cfg.Refresh.RequireSubjectExists {
		deps.Refresh.SubjectExists = e.subjectExists
	}

	return flows.New(deps)
}

// issuePair mints a pair and, with rotation on, records the refresh token id
// so it can be redeemed exactly once.
func (e *Engine) issuePair(ctx context.Context, subject string, isAdmin bool) (jwt.Pair, error) {
	pair, err := e.jwtManager.CreatePair(subject, isAdmin)
	if err != nil {
		return jwt.Pair{}, err
	}

	if e.ledger != nil {
		entry := stores.RefreshEntry{Subject: subject, IsAdmin: isAdmin}
		if err := e.ledger.Save(ctx, pair.RefreshID, entry, e.jwtManager.RefreshTTL()); err != nil {
			return jwt.Pair{}, err
		}
	}

	e.metricInc(MetricTokenPairIssued)
	return pair, nil
}

// issueError maps a failed issuePair onto a public error.
func (e *Engine) issueError(ctx context.Context, subject string, err error) error {
	if errors.Is(err, stores.ErrRefreshRedisUnavailable) {
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "codepass: refresh ledger write failed", "subject", subject, "error", err)
		return ErrStoreUnavailable
	}
	e.logger.ErrorContext(ctx, "codepass: token signing failed", "subject", subject, "error", err)
	return fmt.Errorf("codepass: issue token pair: %w", err)
}

// limiterError separates a tripped budget from a limiter backend outage.
func (e *Engine) limiterError(ctx context.Context, scope string, err, limited error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.emitRateLimit(ctx, scope)
		if after, ok := rate.RetryAfter(err); ok {
			return &RetryAfterError{Err: limited, After: after}
		}
		return limited
	}
	e.metricInc(MetricStoreUnavailable)
	e.logger.ErrorContext(ctx, "codepass: rate limiter unavailable", "scope", scope, "error", err)
	return ErrStoreUnavailable
}

func (e *Engine) createRegistrant(ctx context.Context, r flows.RegistrantRecord) (flows.RegistrantRecord, error) {
	out, err := e.directory.CreateRegistrant(ctx, Registrant{
		RandomID:   r.RandomID,
		Guardians:  r.Guardians,
		Visitors:   r.Visitors,
		ScheduleID: r.ScheduleID,
		CreatedAt:  r.CreatedAt,
	})
	if err != nil {
		return flows.RegistrantRecord{}, err
	}
	return flows.RegistrantRecord{
		RandomID:   out.RandomID,
		Guardians:  out.Guardians,
		Visitors:   out.Visitors,
		ScheduleID: out.ScheduleID,
		CreatedAt:  out.CreatedAt,
	}, nil
}

func (e *Engine) scheduleReservation(ctx context.Context, r flows.RegistrantRecord) error {
	e.metricInc(MetricReservationRequested)
	if d := e.config.Code.ReservationTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return e.reservations.Schedule(ctx, ReservationRequest{
		RegistrantID: r.RandomID,
		ScheduleID:   r.ScheduleID,
		Guardians:    r.Guardians,
		Visitors:     r.Visitors,
		RequestedAt:  e.now().UTC(),
	})
}

func (e *Engine) findAdmin(ctx context.Context, loginID string) (flows.AdminRecord, error) {
	admin, err := e.admins.FindAdmin(ctx, loginID)
	if err != nil {
		return flows.AdminRecord{}, err
	}
	return flows.AdminRecord{
		AdminID:      admin.AdminID,
		LoginID:      admin.LoginID,
		PasswordHash: admin.PasswordHash,
	}, nil
}

func (e *Engine) subjectExists(ctx context.Context, subject string, isAdmin bool) (bool, error) {
	if isAdmin {
		if e.admins == nil {
			return false, nil
		}
		return e.admins.AdminExists(ctx, subject)
	}
	return e.directory.RegistrantExists(ctx, subject)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

func toTokenPair(p jwt.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toClaims(c *jwt.Claims) *Claims {
	out := &Claims{
		SubjectID: c.Subject,
		IsAdmin:   c.Admin,
		TokenID:   c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

func roleOf(isAdmin bool) string {
	if isAdmin {
		return "admin"
	}
	return "registrant"
}
