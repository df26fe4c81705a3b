// Package presence caches, per connected owner, which paired peers were
// recently confirmed online so pairing checks can skip the record store.
package presence

import (
	"sync"
	"time"
)

// DefaultTTL is how long a confirmed-online peer stays cached.
const DefaultTTL = 60 * time.Minute

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the per-entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

type ownerPeers struct {
	mu    sync.Mutex
	peers map[string]time.Time
}

// Cache is a two-level map owner -> peer -> expiry. The outer map and each
// owner's peers are guarded separately so unrelated owners never contend.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	owners map[string]*ownerPeers
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:    DefaultTTL,
		now:    time.Now,
		owners: make(map[string]*ownerPeers),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheAll marks every peer as online for owner until now+TTL and evicts
// entries of owner that already expired.
func (c *Cache) CacheAll(owner string, peers []string) {
	if owner == "" || len(peers) == 0 {
		return
	}
	entry := c.ownerEntry(owner, true)

	now := c.now()
	expires := now.Add(c.ttl)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for uid, exp := range entry.peers {
		if !now.Before(exp) {
			delete(entry.peers, uid)
		}
	}
	for _, uid := range peers {
		if uid != "" {
			entry.peers[uid] = expires
		}
	}
}

// AreAllCached reports whether every peer is cached and unexpired for owner.
// A single miss makes the whole batch false. An empty batch is trivially
// cached.
func (c *Cache) AreAllCached(owner string, peers []string) bool {
	if len(peers) == 0 {
		return true
	}
	entry := c.ownerEntry(owner, false)
	if entry == nil {
		return false
	}

	now := c.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for _, uid := range peers {
		exp, ok := entry.peers[uid]
		if !ok {
			return false
		}
		if !now.Before(exp) {
			delete(entry.peers, uid)
			return false
		}
	}
	return true
}

// Drop forgets everything cached for owner. Called when owner disconnects.
func (c *Cache) Drop(owner string) {
	c.mu.Lock()
	delete(c.owners, owner)
	c.mu.Unlock()
}

// Owners returns the number of owners with a live sub-map.
func (c *Cache) Owners() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.owners)
}

func (c *Cache) ownerEntry(owner string, create bool) *ownerPeers {
	c.mu.RLock()
	entry := c.owners[owner]
	c.mu.RUnlock()
	if entry != nil || !create {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry = c.owners[owner]; entry == nil {
		entry = &ownerPeers{peers: make(map[string]time.Time)}
		c.owners[owner] = entry
	}
	return entry
}
