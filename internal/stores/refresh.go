package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRefreshNotFound         = errors.New("refresh token id not found")
	ErrRefreshRedisUnavailable = errors.New("refresh ledger redis unavailable")
)

// RefreshEntry is what the ledger remembers about an outstanding refresh token.
type RefreshEntry struct {
	Subject string
	IsAdmin bool
}

// RefreshLedger records live refresh-token ids. An id can be redeemed once.
type RefreshLedger struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshLedger(redisClient redis.UniversalClient, prefix string) *RefreshLedger {
	if prefix == "" {
		prefix = "rt"
	}
	return &RefreshLedger{redis: redisClient, prefix: prefix}
}

func (l *RefreshLedger) key(jti string) string {
	return l.prefix + ":" + jti
}

func (l *RefreshLedger) Save(ctx context.Context, jti string, entry RefreshEntry, ttl time.Duration) error {
	if jti == "" {
		return errors.New("refresh token id is required")
	}
	if ttl <= 0 {
		return errors.New("refresh ttl must be > 0")
	}
	if err := l.redis.Set(ctx, l.key(jti), encodeRefreshEntry(entry), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

// Redeem removes the id and returns what it was issued for. A second call
// with the same id reports ErrRefreshNotFound.
func (l *RefreshLedger) Redeem(ctx context.Context, jti string) (RefreshEntry, error) {
	raw, err := l.redis.GetDel(ctx, l.key(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshEntry{}, ErrRefreshNotFound
		}
		return RefreshEntry{}, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	entry, ok := decodeRefreshEntry(raw)
	if !ok {
		return RefreshEntry{}, ErrRefreshNotFound
	}
	return entry, nil
}

func (l *RefreshLedger) Revoke(ctx context.Context, jti string) error {
	if err := l.redis.Del(ctx, l.key(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

func encodeRefreshEntry(entry RefreshEntry) string {
	if entry.IsAdmin {
		return "a:" + entry.Subject
	}
	return "u:" + entry.Subject
}

func decodeRefreshEntry(raw string) (RefreshEntry, bool) {
	role, subject, ok := strings.Cut(raw, ":")
	if !ok || subject == "" {
		return RefreshEntry{}, false
	}
	switch role {
	case "a":
		return RefreshEntry{Subject: subject, IsAdmin: true}, true
	case "u":
		return RefreshEntry{Subject: subject}, true
	default:
		return RefreshEntry{}, false
	}
}
