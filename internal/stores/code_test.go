package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCodeStoreTest(t *testing.T) (*CodeStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCodeStore(rdb, "cpc"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testCodeRecord(id string) *CodeRecord {
	now := time.Now()
	return &CodeRecord{
		ID:         id,
		Guardians:  2,
		Visitors:   1,
		ScheduleID: 77,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  now.Add(5 * time.Minute).UnixMilli(),
	}
}

func TestCodeStorePutConsumeOnce(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("482913"), 5*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := store.Consume(ctx, "482913")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if rec.ID != "482913" || rec.Guardians != 2 || rec.Visitors != 1 || rec.ScheduleID != 77 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := store.Consume(ctx, "482913"); !errors.Is(err, ErrCodeAlreadyConsumed) {
		t.Fatalf("expected ErrCodeAlreadyConsumed, got %v", err)
	}
}

func TestCodeStoreConsumeUnknown(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()

	if _, err := store.Consume(context.Background(), "000000"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestCodeStorePutCollidesWithLiveCode(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("111111"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, testCodeRecord("111111"), time.Minute); !errors.Is(err, ErrCodeExists) {
		t.Fatalf("expected ErrCodeExists, got %v", err)
	}

	if _, err := store.Consume(ctx, "111111"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.Put(ctx, testCodeRecord("111111"), time.Minute); !errors.Is(err, ErrCodeExists) {
		t.Fatalf("expected consumed tombstone to block reissue, got %v", err)
	}
	if _, err := store.Consume(ctx, "111111"); !errors.Is(err, ErrCodeAlreadyConsumed) {
		t.Fatalf("expected tombstone to survive the rejected put, got %v", err)
	}
}

func TestCodeStorePutReplacesExpiredUnconsumedRecord(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("121212"), time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.WithClock(func() time.Time { return time.Now().Add(10 * time.Minute) })

	next := testCodeRecord("121212")
	next.Guardians = 4
	if err := store.Put(ctx, next, time.Hour); err != nil {
		t.Fatalf("expected expired record to be replaceable: %v", err)
	}
}

func TestCodeStoreExpiryUsesMilliseconds(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	rec := testCodeRecord("131313")
	rec.CreatedAt = base.UnixMilli()
	rec.ExpiresAt = base.Add(time.Minute).UnixMilli()
	if err := store.Put(ctx, rec, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	// 300ms past expiresAt is still the same unix second.
	store.WithClock(func() time.Time { return base.Add(time.Minute + 300*time.Millisecond) })
	if _, err := store.Consume(ctx, "131313"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound just past expiresAt, got %v", err)
	}
}

func TestCodeStoreExpiredByTTL(t *testing.T) {
	store, mr, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("222222"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(time.Minute + time.Second)

	if _, err := store.Consume(ctx, "222222"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after ttl, got %v", err)
	}
}

func TestCodeStoreExpiredByRecordClock(t *testing.T) {
	store, mr, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("333333"), time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.WithClock(func() time.Time { return time.Now().Add(10 * time.Minute) })

	if _, err := store.Consume(ctx, "333333"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound past expiresAt, got %v", err)
	}
	if mr.Exists("cpc:333333") {
		t.Fatal("expected expired record to be deleted")
	}
}

func TestCodeStoreConsumePreservesTTL(t *testing.T) {
	store, mr, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("444444"), 2*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Consume(ctx, "444444"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	ttl := mr.TTL("cpc:444444")
	if ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("expected tombstone ttl preserved, got %v", ttl)
	}
}

func TestCodeStoreConcurrentConsumeSingleWinner(t *testing.T) {
	store, _, done := newCodeStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testCodeRecord("555555"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "555555")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrCodeAlreadyConsumed) {
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one consume success, got %d", success)
	}
}

func TestCodeStoreRedisUnavailable(t *testing.T) {
	store, mr, done := newCodeStoreTest(t)
	defer done()
	mr.Close()

	err := store.Put(context.Background(), testCodeRecord("666666"), time.Minute)
	if !errors.Is(err, ErrCodeRedisUnavailable) {
		t.Fatalf("expected ErrCodeRedisUnavailable, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "666666"); !errors.Is(err, ErrCodeRedisUnavailable) {
		t.Fatalf("expected ErrCodeRedisUnavailable, got %v", err)
	}
}

func TestCodeRecordDecodeRejectsBadInput(t *testing.T) {
	if _, err := decodeCodeRecord([]byte{1, 0, 0}); err == nil {
		t.Fatal("expected short record to fail")
	}
	data, err := encodeCodeRecord(testCodeRecord("1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 9
	if _, err := decodeCodeRecord(data); err == nil {
		t.Fatal("expected unknown version to fail")
	}
}
