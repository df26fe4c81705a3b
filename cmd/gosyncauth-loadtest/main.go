// Command gosyncauth-loadtest drives the single-session guard with many
// contending shards and reports latency percentiles plus any mutual-exclusion
// violation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSyncAuth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 50000, "number of distinct account UIDs")
		contenders  = flag.Int("contenders", 4, "shards racing for each account")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		scope       = flag.String("scope", "loadtest", "guard key scope")
	)
	flag.Parse()

	if *accounts <= 0 || *contenders <= 1 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0 and contenders > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	guard := session.NewGuard(client, *scope, session.DefaultClaimTTL)

	claimStats, winners, violations := runClaimPhase(ctx, guard, *accounts, *contenders, *concurrency)
	refreshStats := runRefreshPhase(ctx, guard, winners, *ops, *concurrency)

	active, err := guard.CountActive(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count failed: %v\n", err)
	}
	releaseStats := runReleasePhase(ctx, guard, winners, *concurrency)

	fmt.Println("---- results ----")
	printStats("claim", claimStats)
	printStats("refresh", refreshStats)
	printStats("release", releaseStats)
	fmt.Printf("active after claim: %d (want %d)\n", active, *accounts)
	if violations > 0 {
		fmt.Fprintf(os.Stderr, "mutual exclusion violated for %d accounts\n", violations)
		os.Exit(1)
	}
}

func uidFor(i int) string { return fmt.Sprintf("UID%07d", i) }

// runClaimPhase lets every contender try to claim every account and returns
// the winning holder per account.
func runClaimPhase(ctx context.Context, guard *session.Guard, accounts, contenders, concurrency int) (phaseStats, []string, int64) {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		violations int64
		latencies  = make([]time.Duration, 0, accounts*contenders)
		mu         sync.Mutex
		granted    = make([]int32, accounts)
		winners    = make([]string, accounts)
	)

	total := accounts * contenders
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= total {
					return
				}
				acct, shard := i/contenders, i%contenders
				holder := fmt.Sprintf("shard-%d", shard)
				t0 := time.Now()
				ok, err := guard.TryClaim(ctx, uidFor(acct), holder)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				if ok {
					if atomic.AddInt32(&granted[acct], 1) > 1 {
						atomic.AddInt64(&violations, 1)
					}
					mu.Lock()
					winners[acct] = holder
					mu.Unlock()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), winners, violations
}

func runRefreshPhase(ctx context.Context, guard *session.Guard, winners []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.IntN(len(winners))
				t0 := time.Now()
				ok, err := guard.Refresh(ctx, uidFor(idx), winners[idx])
				d := time.Since(t0)
				if err != nil || !ok {
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

func runReleasePhase(ctx context.Context, guard *session.Guard, winners []string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(winners))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(winners) {
					return
				}
				t0 := time.Now()
				err := guard.Release(ctx, uidFor(i), winners[i])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
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
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
