package codepass

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/codepass/internal"
	internalaudit "github.com/MrEthical07/codepass/internal/audit"
	"github.com/MrEthical07/codepass/internal/rate"
	"github.com/MrEthical07/codepass/internal/stores"
	"github.com/MrEthical07/codepass/jwt"
	"github.com/MrEthical07/codepass/password"
	"github.com/redis/go-redis/v9"
)

// Builder collects configuration and collaborators for an [Engine]. A
// Builder is single use: Build may succeed only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	codeStore    CodeStore
	directory    Directory
	admins       AdminDirectory
	reservations Reservations

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Key material is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the code store, the refresh ledger and
// the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCodeStore replaces the Redis code store.
func (b *Builder) WithCodeStore(store CodeStore) *Builder {
	b.codeStore = store
	return b
}

func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.directory = dir
	return b
}

// WithAdminDirectory enables AdminLogin and admin existence checks.
func (b *Builder) WithAdminDirectory(admins AdminDirectory) *Builder {
	b.admins = admins
	return b
}

func (b *Builder) WithReservations(r Reservations) *Builder {
	b.reservations = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for code expiry and token claims.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	jwtMgr, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	codes := b.codeStore
	if codes == nil {
		codes = stores.NewCodeStore(b.redis, cfg.Code.RedisPrefix).WithClock(now)
	}

	var ledger *stores.RefreshLedger
	if cfg.Refresh.RotateOnUse {
		ledger = stores.NewRefreshLedger(b.redis, cfg.Refresh.RedisPrefix)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	var dummyHash string
	if b.admins != nil {
		if dummyHash, err = hasher.DummyHash(); err != nil {
			return nil, err
		}
	}

	t := cfg.Throttle
	limiter := rate.New(b.redis, rate.Config{
		Issue:   rate.Window{Enabled: t.EnableIssueThrottle, Max: t.MaxIssuePerIP, Period: t.IssueWindow},
		Verify:  rate.Window{Enabled: t.EnableVerifyThrottle, Max: t.MaxVerifyPerIP, Period: t.VerifyWindow},
		Refresh: rate.Window{Enabled: t.EnableRefreshThrottle, Max: t.MaxRefreshPerIP, Period: t.RefreshWindow},
		Login:   rate.Window{Enabled: t.EnableLoginThrottle, Max: t.MaxLoginFailures, Period: t.LoginCooldown},

		EnableLoginIPKey: t.EnableLoginIPThrottle,
	})

	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}

	digits := cfg.Code.Digits
	e := &Engine{
		config:       cfg,
		codes:        codes,
		directory:    b.directory,
		admins:       b.admins,
		reservations: b.reservations,
		limiter:      limiter,
		ledger:       ledger,
		jwtManager:   jwtMgr,
		passwordHash: hasher,
		dummyHash:    dummyHash,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			Critical:     criticalAuditEvents,
			CriticalWait: cfg.Audit.CriticalWait,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
		newCode: func() (string, error) { return internal.NewCode(digits) },
	}
	e.flows = e.buildFlows()

	b.built = true
	return e, nil
}
