//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSyncAuth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func TestGuardCompatClaimIsExclusive(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, done := mode.setup(t)
			defer done()

			g := session.NewGuard(rdb, "compat", time.Minute)
			ctx := context.Background()

			const racers = 16
			var granted atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := g.TryClaim(ctx, "UIDRACE", "shard-"+string(rune('a'+i)))
					if err != nil {
						t.Errorf("TryClaim: %v", err)
					}
					if ok {
						granted.Add(1)
					}
				}(i)
			}
			wg.Wait()

			if granted.Load() != 1 {
				t.Fatalf("expected exactly one grant, got %d", granted.Load())
			}
			holder, err := g.Holder(ctx, "UIDRACE")
			if err != nil || holder == "" {
				t.Fatalf("expected a holder, got %q err=%v", holder, err)
			}
			if err := g.Release(ctx, "UIDRACE", "not-the-holder"); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if active, _ := g.IsActive(ctx, "UIDRACE"); !active {
				t.Fatal("release by a non-holder must not drop the claim")
			}
			if err := g.Release(ctx, "UIDRACE", holder); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if active, _ := g.IsActive(ctx, "UIDRACE"); active {
				t.Fatal("expected claim to be gone after release by holder")
			}
		})
	}
}

func TestGuardCompatCountActive(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, done := mode.setup(t)
			defer done()

			g := session.NewGuard(rdb, "compat-count", time.Minute)
			ctx := context.Background()
			for _, uid := range []string{"U1", "U2", "U3"} {
				if ok, err := g.TryClaim(ctx, uid, "shard-a"); err != nil || !ok {
					t.Fatalf("claim %s: ok=%v err=%v", uid, ok, err)
				}
			}
			n, err := g.CountActive(ctx)
			if err != nil {
				t.Fatalf("CountActive: %v", err)
			}
			if n != 3 {
				t.Fatalf("expected 3 active, got %d", n)
			}
		})
	}
}
