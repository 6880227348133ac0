// Package config loads the server configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName     string        `env:"CODEPASS_SERVICE_NAME"     envDefault:"codepass"`
	Addr            string        `env:"CODEPASS_ADDR"             envDefault:":8080"`
	AdvertiseAddr   string        `env:"CODEPASS_ADVERTISE_ADDR"`
	ReadTimeout     time.Duration `env:"CODEPASS_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"CODEPASS_WRITE_TIMEOUT"    envDefault:"10s"`
	IdleTimeout     time.Duration `env:"CODEPASS_IDLE_TIMEOUT"     envDefault:"60s"`
	RequestTimeout  time.Duration `env:"CODEPASS_REQUEST_TIMEOUT"  envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"CODEPASS_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	AllowedOrigins    []string `env:"CODEPASS_ALLOWED_ORIGINS" envSeparator:","`
	TrustProxyHeaders bool     `env:"CODEPASS_TRUST_PROXY_HEADERS"`

	LogLevel  string `env:"CODEPASS_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"CODEPASS_LOG_FORMAT" envDefault:"json"`

	RedisURL string `env:"CODEPASS_REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// DirectoryDriver is "sqlite" or "postgres".
	DirectoryDriver string `env:"CODEPASS_DIRECTORY_DRIVER" envDefault:"sqlite"`
	SQLitePath      string `env:"CODEPASS_SQLITE_PATH"      envDefault:"codepass.db"`
	DatabaseURL     string `env:"CODEPASS_DATABASE_URL"`
	DBMaxConns      int32  `env:"CODEPASS_DB_MAX_CONNS"     envDefault:"10"`

	// Reservations are disabled when NATSURL is empty.
	NATSURL            string        `env:"CODEPASS_NATS_URL"`
	ReservationSubject string        `env:"CODEPASS_RESERVATION_SUBJECT" envDefault:"reservation.pre_reservation.requested"`
	ReservationTimeout time.Duration `env:"CODEPASS_RESERVATION_TIMEOUT" envDefault:"2s"`

	JWTSecret            string        `env:"CODEPASS_JWT_SECRET,unset"`
	JWTIssuer            string        `env:"CODEPASS_JWT_ISSUER"   envDefault:"codepass"`
	JWTAudience          string        `env:"CODEPASS_JWT_AUDIENCE"`
	AccessTTL            time.Duration `env:"CODEPASS_ACCESS_TTL"   envDefault:"5m"`
	RefreshTTL           time.Duration `env:"CODEPASS_REFRESH_TTL"  envDefault:"336h"`
	CodeTTL              time.Duration `env:"CODEPASS_CODE_TTL"     envDefault:"5m"`
	CodeDigits           int           `env:"CODEPASS_CODE_DIGITS"  envDefault:"6"`
	RotateRefresh        bool          `env:"CODEPASS_ROTATE_REFRESH"         envDefault:"true"`
	RequireSubjectExists bool          `env:"CODEPASS_REQUIRE_SUBJECT_EXISTS" envDefault:"true"`

	// BootstrapAdmin* seed one admin at startup when all are set.
	BootstrapAdminID       string `env:"CODEPASS_BOOTSTRAP_ADMIN_ID"`
	BootstrapAdminLogin    string `env:"CODEPASS_BOOTSTRAP_ADMIN_LOGIN"`
	BootstrapAdminPassword string `env:"CODEPASS_BOOTSTRAP_ADMIN_PASSWORD,unset"`

	MetricsEnabled bool `env:"CODEPASS_METRICS_ENABLED" envDefault:"true"`
	AuditEnabled   bool `env:"CODEPASS_AUDIT_ENABLED"   envDefault:"true"`

	RegistryEnabled  bool          `env:"CODEPASS_REGISTRY_ENABLED"`
	RegistryInterval time.Duration `env:"CODEPASS_REGISTRY_INTERVAL" envDefault:"10s"`

	OTelEndpoint    string  `env:"CODEPASS_OTEL_ENDPOINT"`
	OTelSampleRatio float64 `env:"CODEPASS_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Load reads dotenvPath when it exists, then parses the environment.
// Variables already set in the environment win over the file.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DirectoryDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("CODEPASS_SQLITE_PATH is required for the sqlite directory")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("CODEPASS_DATABASE_URL is required for the postgres directory")
		}
	default:
		return fmt.Errorf("unknown directory driver %q", c.DirectoryDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("CODEPASS_JWT_SECRET is required")
	}
	return nil
}

// Engine maps the settings onto an engine config, starting from the
// library defaults.
func (c Config) Engine() codepass.Config {
	cfg := codepass.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Code.TTL = c.CodeTTL
	cfg.Code.Digits = c.CodeDigits
	cfg.Code.ReservationTimeout = c.ReservationTimeout
	cfg.Refresh.RotateOnUse = c.RotateRefresh
	cfg.Refresh.RequireSubjectExists = c.RequireSubjectExists
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	cfg.Audit.Enabled = c.AuditEnabled
	return cfg
}
