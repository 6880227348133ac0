// Command codepass-server serves the verification-code and token API.
//
// Configuration comes from CODEPASS_* environment variables, optionally
// seeded from a .env file (see -env).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/codepass"
	"github.com/MrEthical07/codepass/directory/postgres"
	"github.com/MrEthical07/codepass/directory/sqlite"
	"github.com/MrEthical07/codepass/internal/httpapi"
	"github.com/MrEthical07/codepass/internal/platform/config"
	"github.com/MrEthical07/codepass/internal/platform/logging"
	platformotel "github.com/MrEthical07/codepass/internal/platform/otel"
	"github.com/MrEthical07/codepass/internal/registry"
	"github.com/MrEthical07/codepass/metrics/export/prometheus"
	"github.com/MrEthical07/codepass/password"
	"github.com/MrEthical07/codepass/reservation"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("codepass-server exited", "error", err)
		os.Exit(1)
	}
}

// directory is what the server needs from either store.
type directory interface {
	codepass.Directory
	codepass.AdminDirectory
	PutAdmin(ctx context.Context, rec codepass.AdminRecord) error
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelSampleRatio)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	engineCfg := cfg.Engine()
	if err := bootstrapAdmin(ctx, cfg, engineCfg.Password, dir); err != nil {
		return err
	}

	builder := codepass.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAdminDirectory(dir).
		WithLogger(logger)

	if cfg.NATSURL != "" {
		nc, err := reservation.Connect(cfg.NATSURL, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer nc.Close()
		builder = builder.WithReservations(reservation.NewPublisher(nc,
			reservation.WithSubject(cfg.ReservationSubject),
			reservation.WithLogger(logger),
		))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security posture",
		"signing_alg", report.SigningAlgorithm,
		"code_digits", report.CodeDigits,
		"code_ttl", report.CodeTTL,
		"guesses_per_code", report.GuessesPerCode,
		"refresh_rotation", report.RefreshRotationEnabled,
		"subject_recheck", report.SubjectRecheckEnabled,
		"rate_limiting", report.RateLimitingActive,
	)
	if !report.VerifyThrottleActive {
		logger.Warn("verify throttle disabled; codes can be guessed without limit")
	}

	opts := httpapi.Options{
		Logger:            logger,
		Tracer:            otel.Tracer("github.com/MrEthical07/codepass/internal/httpapi"),
		AllowedOrigins:    cfg.AllowedOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RequestTimeout:    cfg.RequestTimeout,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = prometheus.NewExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(engine, opts),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var reg *registry.Registry
	if cfg.RegistryEnabled {
		advertise := cfg.AdvertiseAddr
		if advertise == "" {
			advertise = cfg.Addr
		}
		reg, err = registry.New(rdb, registry.Config{
			Service:  cfg.ServiceName,
			Addr:     advertise,
			Interval: cfg.RegistryInterval,
		}, logger)
		if err != nil {
			return err
		}
	}

	if reg != nil {
		if err := reg.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting codepass-server", "addr", cfg.Addr, "directory", cfg.DirectoryDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down codepass-server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		if reg != nil {
			if err := reg.Stop(shutdownCtx); err != nil {
				logger.Warn("registry stop failed", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openDirectory(ctx context.Context, cfg config.Config) (directory, func(), error) {
	switch cfg.DirectoryDriver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{MinConns: 1, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func bootstrapAdmin(ctx context.Context, cfg config.Config, pc codepass.PasswordConfig, dir directory) error {
	if cfg.BootstrapAdminID == "" || cfg.BootstrapAdminLogin == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	hash, err := hasher.Hash(cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return dir.PutAdmin(ctx, codepass.AdminRecord{
		AdminID:      cfg.BootstrapAdminID,
		LoginID:      cfg.BootstrapAdminLogin,
		PasswordHash: hash,
	})
}
