package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the shared store cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrInvalidUID is returned for empty account identifiers.
var ErrInvalidUID = errors.New("invalid uid")

// DefaultClaimTTL bounds how long a claim survives a connection that vanished
// without a clean disconnect.
const DefaultClaimTTL = 10 * time.Minute

const scanBatch = 500

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

var (
	releaseLua = redis.NewScript(releaseScript)
	refreshLua = redis.NewScript(refreshScript)
)

// Guard claims and releases the per-account session key.
type Guard struct {
	redis redis.UniversalClient
	scope string
	ttl   time.Duration
}

// NewGuard creates a Guard writing keys under scope with the given TTL.
func NewGuard(redisClient redis.UniversalClient, scope string, ttl time.Duration) *Guard {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "sync"
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Guard{redis: redisClient, scope: scope, ttl: ttl}
}

// TTL returns the claim lifetime.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// TryClaim records that uid has an active session owned by holder. holder
// must be unique per connection so that Refresh and Release from a stale
// connection cannot touch its successor's claim. It returns false when a live
// claim already exists. On a Redis error it returns false together with
// ErrRedisUnavailable.
func (g *Guard) TryClaim(ctx context.Context, uid, holder string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, ErrInvalidUID
	}
	ok, err := g.redis.SetNX(ctx, g.key(uid), holder, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Release removes the claim for uid if it is still owned by holder. Releasing
// a claim that expired or was taken over is a no-op.
func (g *Guard) Release(ctx context.Context, uid, holder string) error {
	if strings.TrimSpace(uid) == "" {
		return ErrInvalidUID
	}
	if err := releaseLua.Run(ctx, g.redis, []string{g.key(uid)}, holder).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Refresh extends the claim TTL while it is still owned by holder. It returns
// false if the claim expired or belongs to another holder.
func (g *Guard) Refresh(ctx context.Context, uid, holder string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, ErrInvalidUID
	}
	n, err := refreshLua.Run(ctx, g.redis, []string{g.key(uid)}, holder, g.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// IsActive reports whether uid currently holds a live claim.
func (g *Guard) IsActive(ctx context.Context, uid string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, ErrInvalidUID
	}
	n, err := g.redis.Exists(ctx, g.key(uid)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Holder returns the holder token of the claim for uid, or "" if none.
func (g *Guard) Holder(ctx context.Context, uid string) (string, error) {
	v, err := g.redis.Get(ctx, g.key(uid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return v, nil
}

// CountActive enumerates live claims across the fleet.
func (g *Guard) CountActive(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := g.redis.Scan(ctx, cursor, g.scope+":UID:*", scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}

func (g *Guard) key(uid string) string {
	return g.scope + ":UID:" + uid
}
