// Command codepass-loadtest drives the engine in-process against Redis (or
// miniredis) and reports throughput and latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memDirectory struct {
	registrants sync.Map
}

func (d *memDirectory) RegistrantExists(_ context.Context, id string) (bool, error) {
	_, ok := d.registrants.Load(id)
	return ok, nil
}

func (d *memDirectory) CreateRegistrant(_ context.Context, r codepass.Registrant) (codepass.Registrant, error) {
	stored, _ := d.registrants.LoadOrStore(r.RandomID, r)
	return stored.(codepass.Registrant), nil
}

func main() {
	var (
		codes       = flag.Int("codes", 20000, "codes to issue and verify")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations for the validate phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		digits      = flag.Int("digits", 8, "code width; 6 digits collide often at high volume")
	)
	flag.Parse()

	if *codes <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "codes, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := codepass.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-loadtest-secret-")
	cfg.Code.Digits = *digits
	cfg.Code.MaxGenerateAttempts = 10
	cfg.Code.RedisPrefix = fmt.Sprintf("lt%d", time.Now().UnixNano())
	cfg.Throttle = codepass.ThrottleConfig{}
	cfg.Metrics.Enabled = true

	engine, err := codepass.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(&memDirectory{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	issued := make([]string, *codes)
	issueStats := runPhase(*codes, *concurrency, func(i int, _ *rand.Rand) error {
		desc, err := engine.IssueCode(ctx, codepass.CodePayload{Guardians: 1 + i%3, Visitors: i % 2})
		issued[i] = desc.Code
		return err
	})

	pairs := make([]codepass.TokenPair, *codes)
	verifyStats := runPhase(*codes, *concurrency, func(i int, _ *rand.Rand) error {
		if issued[i] == "" {
			return fmt.Errorf("no code")
		}
		res, err := engine.Verify(ctx, issued[i])
		pairs[i] = res.Tokens
		return err
	})

	validateStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		pair := pairs[r.Intn(len(pairs))]
		if pair.AccessToken == "" {
			return fmt.Errorf("no token")
		}
		_, err := engine.Validate(ctx, pair.AccessToken)
		return err
	})

	reissueStats := runPhase(*codes, *concurrency, func(i int, _ *rand.Rand) error {
		if pairs[i].RefreshToken == "" {
			return fmt.Errorf("no token")
		}
		_, err := engine.Reissue(ctx, pairs[i].RefreshToken)
		return err
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("verify", verifyStats)
	printStats("validate", validateStats)
	printStats("reissue", reissueStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("collisions=%d exhausted=%d replays=%d\n",
		snap.Counters[codepass.MetricCodeCollision],
		snap.Counters[codepass.MetricCodeExhausted],
		snap.Counters[codepass.MetricVerifyReplay],
	)
}

// runPhase calls op for indexes [0, n) spread over workers.
func runPhase(n, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-9s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
