// Package registry announces a running instance in Redis so peers and load
// balancers can discover it. An instance is a key with a TTL that a
// heartbeat keeps alive; a crashed instance disappears when the TTL lapses.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix   = "registry"
	defaultInterval = 10 * time.Second
)

type Instance struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"startedAt"`
}

type Config struct {
	Service string
	Addr    string
	Prefix  string
	// Interval between heartbeats. The key TTL is three intervals.
	Interval time.Duration
}

type Registry struct {
	rdb      redis.UniversalClient
	logger   *slog.Logger
	prefix   string
	interval time.Duration
	self     Instance

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) (*Registry, error) {
	if rdb == nil {
		return nil, errors.New("registry: redis client is required")
	}
	if cfg.Service == "" {
		return nil, errors.New("registry: service name is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	return &Registry{
		rdb:      rdb,
		logger:   logger,
		prefix:   cfg.Prefix,
		interval: cfg.Interval,
		self: Instance{
			ID:        uuid.NewString(),
			Service:   cfg.Service,
			Addr:      cfg.Addr,
			StartedAt: time.Now().UTC(),
		},
	}, nil
}

func (r *Registry) Self() Instance { return r.self }

func (r *Registry) ttl() time.Duration { return 3 * r.interval }

func (r *Registry) key(service, id string) string {
	return r.prefix + ":" + service + ":" + id
}

func (r *Registry) beat(ctx context.Context) error {
	body, err := json.Marshal(r.self)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(r.self.Service, r.self.ID), body, r.ttl()).Err()
}

// Start registers the instance and keeps it alive until Stop. The first
// registration is synchronous so a Redis outage fails startup.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("registry: already started")
	}

	if err := r.beat(ctx); err != nil {
		return fmt.Errorf("registry: register: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)

	r.logger.InfoContext(ctx, "registered instance", "service", r.self.Service, "instance", r.self.ID, "addr", r.self.Addr)
	return nil
}

func (r *Registry) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.beat(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "registry heartbeat failed", "instance", r.self.ID, "error", err)
			}
		}
	}
}

// Stop ends the heartbeat and removes the instance. It is safe to call
// more than once.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	if err := r.rdb.Del(ctx, r.key(r.self.Service, r.self.ID)).Err(); err != nil {
		return fmt.Errorf("registry: deregister: %w", err)
	}
	r.logger.InfoContext(ctx, "deregistered instance", "service", r.self.Service, "instance", r.self.ID)
	return nil
}

// Instances lists the live instances of service.
func (r *Registry) Instances(ctx context.Context, service string) ([]Instance, error) {
	var out []Instance
	iter := r.rdb.Scan(ctx, 0, r.key(service, "*"), 100).Iterator()
	for iter.Next(ctx) {
		body, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var inst Instance
		if err := json.Unmarshal(body, &inst); err != nil {
			r.logger.WarnContext(ctx, "skipping malformed registry entry", "key", iter.Val(), "error", err)
			continue
		}
		out = append(out, inst)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
