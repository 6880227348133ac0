package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is one fixed-window budget.
type Window struct {
	Enabled bool
	Max     int
	Period  time.Duration
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Issue   Window
	Verify  Window
	Refresh Window

	// Login counts failures only; a success clears both counters.
	Login            Window
	EnableLoginIPKey bool
}

// Limiter enforces per-IP and per-login budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue counts one code issuance for ip.
func (l *Limiter) CheckIssue(ctx context.Context, ip string) error {
	return l.hit(ctx, "issue", l.config.Issue, issueKey(ip), ip)
}

// CheckVerify counts one verification attempt for ip, matched or not.
func (l *Limiter) CheckVerify(ctx context.Context, ip string) error {
	return l.hit(ctx, "verify", l.config.Verify, verifyKey(ip), ip)
}

// CheckRefresh counts one reissue attempt for ip.
func (l *Limiter) CheckRefresh(ctx context.Context, ip string) error {
	return l.hit(ctx, "refresh", l.config.Refresh, refreshKey(ip), ip)
}

// CheckLogin reports a LimitError when loginID or ip has exhausted its
// failure budget. It does not count anything itself.
func (l *Limiter) CheckLogin(ctx context.Context, loginID, ip string) error {
	if !l.config.Login.Enabled {
		return nil
	}
	if err := l.checkCounter(ctx, loginKey(loginID), l.config.Login.Max); err != nil {
		return err
	}
	if l.config.EnableLoginIPKey && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.Login.Max); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login.
func (l *Limiter) IncrementLogin(ctx context.Context, loginID, ip string) error {
	if !l.config.Login.Enabled {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, loginKey(loginID), l.config.Login.Period); err != nil {
		return err
	}
	if l.config.EnableLoginIPKey && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.Login.Period); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears failure counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, loginID, ip string) error {
	if !l.config.Login.Enabled {
		return nil
	}
	keys := []string{loginKey(loginID)}
	if l.config.EnableLoginIPKey && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, scope string, w Window, key, ip string) error {
	if !w.Enabled || ip == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, key, w.Period)
	if err != nil {
		return err
	}
	if count > int64(w.Max) {
		return l.limited(ctx, scope, key)
	}
	return nil
}

// limited builds the rejection with the window's remaining lifetime. A
// failed PTTL only loses the hint.
func (l *Limiter) limited(ctx context.Context, scope, key string) error {
	le := &LimitError{Scope: scope}
	if ttl, err := l.redis.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		le.RetryAfter = ttl
	}
	return le
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return l.limited(ctx, "login", key)
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func issueKey(ip string) string   { return "rci:" + ip }
func verifyKey(ip string) string  { return "rcv:" + ip }
func refreshKey(ip string) string { return "rrf:" + ip }
func loginKey(id string) string   { return "ral:" + id }
func loginIPKey(ip string) string { return "rali:" + ip }
