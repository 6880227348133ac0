package codepass

import (
	"errors"
	"time"
)

// Config is copied by Builder.WithConfig and frozen by Build.
type Config struct {
	JWT      JWTConfig
	Code     CodeConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig controls verification code generation and storage.
type CodeConfig struct {
	Digits              int
	TTL                 time.Duration
	MaxGenerateAttempts int
	RedisPrefix         string
	// Zero means unbounded.
	MaxGuardians int
	MaxVisitors  int
	// ReservationTimeout bounds the pre-reservation call made inside Verify.
	// Zero leaves it bounded only by the caller's context.
	ReservationTimeout time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	// RotateOnUse makes every refresh token redeemable exactly once.
	RotateOnUse bool
	RedisPrefix string
	// RequireSubjectExists re-checks the directory before reissuing.
	RequireSubjectExists bool
}

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig holds the per-IP windows. A window keyed by IP is skipped
// for calls whose context carries no client IP.
type ThrottleConfig struct {
	EnableIssueThrottle bool
	MaxIssuePerIP       int
	IssueWindow         time.Duration

	EnableVerifyThrottle bool
	MaxVerifyPerIP       int
	VerifyWindow         time.Duration

	EnableRefreshThrottle bool
	MaxRefreshPerIP       int
	RefreshWindow         time.Duration

	EnableLoginThrottle   bool
	EnableLoginIPThrottle bool
	MaxLoginFailures      int
	LoginCooldown         time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// CriticalWait is how long replay, reuse and admin login failure events
	// wait for buffer room before they are dropped too.
	CriticalWait time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults Build starts from. Signing keys are
// left empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "codepass",
		},
		Code: CodeConfig{
			Digits:              6,
			TTL:                 5 * time.Minute,
			MaxGenerateAttempts: 5,
			RedisPrefix:         "cpc",
			ReservationTimeout:  2 * time.Second,
		},
		Refresh: RefreshConfig{
			RotateOnUse:          true,
			RedisPrefix:          "rt",
			RequireSubjectExists: true,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Throttle: ThrottleConfig{
			EnableIssueThrottle:   true,
			MaxIssuePerIP:         20,
			IssueWindow:           time.Minute,
			EnableVerifyThrottle:  true,
			MaxVerifyPerIP:        30,
			VerifyWindow:          time.Minute,
			EnableRefreshThrottle: true,
			MaxRefreshPerIP:       60,
			RefreshWindow:         time.Minute,
			EnableLoginThrottle:   true,
			EnableLoginIPThrottle: true,
			MaxLoginFailures:      5,
			LoginCooldown:         15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			CriticalWait: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Code
	if c.Code.Digits < 4 || c.Code.Digits > 10 {
		return errors.New("Code Digits must be between 4 and 10")
	}
	if c.Code.TTL <= 0 {
		return errors.New("Code TTL must be > 0")
	}
	if c.Code.TTL > time.Hour {
		return errors.New("Code TTL must be <= 1h")
	}
	if c.Code.MaxGenerateAttempts < 1 {
		return errors.New("Code MaxGenerateAttempts must be >= 1")
	}
	if c.Code.RedisPrefix == "" {
		return errors.New("Code RedisPrefix must be set")
	}
	if c.Code.MaxGuardians < 0 || c.Code.MaxVisitors < 0 {
		return errors.New("Code MaxGuardians and MaxVisitors must be >= 0")
	}
	if c.Code.ReservationTimeout < 0 {
		return errors.New("Code ReservationTimeout must be >= 0")
	}

	// Refresh
	if c.Refresh.RotateOnUse && c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix must be set when RotateOnUse is true")
	}
	if c.Refresh.RedisPrefix != "" && c.Refresh.RedisPrefix == c.Code.RedisPrefix {
		return errors.New("Refresh RedisPrefix must differ from Code RedisPrefix")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Throttle
	t := c.Throttle
	if t.EnableIssueThrottle && (t.MaxIssuePerIP <= 0 || t.IssueWindow <= 0) {
		return errors.New("Throttle issue window requires MaxIssuePerIP > 0 and IssueWindow > 0")
	}
	if t.EnableVerifyThrottle && (t.MaxVerifyPerIP <= 0 || t.VerifyWindow <= 0) {
		return errors.New("Throttle verify window requires MaxVerifyPerIP > 0 and VerifyWindow > 0")
	}
	if t.EnableRefreshThrottle && (t.MaxRefreshPerIP <= 0 || t.RefreshWindow <= 0) {
		return errors.New("Throttle refresh window requires MaxRefreshPerIP > 0 and RefreshWindow > 0")
	}
	if t.EnableLoginThrottle && (t.MaxLoginFailures <= 0 || t.LoginCooldown <= 0) {
		return errors.New("Throttle login requires MaxLoginFailures > 0 and LoginCooldown > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}
	if c.Audit.CriticalWait < 0 {
		return errors.New("Audit CriticalWait must be >= 0")
	}

	return nil
}
