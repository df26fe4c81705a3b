package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/goSyncAuth/store"
)

const (
	DefaultMinBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultResolveTimeout = 5 * time.Second
)

var (
	// ErrMalformedPayload is returned for payloads that are not valid JSON.
	ErrMalformedPayload = errors.New("malformed change payload")
	// ErrEmptyLinkKey is returned for events without a link key.
	ErrEmptyLinkKey = errors.New("change event without link key")
)

// Event is the JSON payload published on the account-claim channel.
type Event struct {
	ID               int64  `json:"id"`
	LinkKey          string `json:"link_key"`
	ExternalID       string `json:"external_id"`
	VerificationCode string `json:"verification_code"`
}

// VerificationNotifier pushes verification codes to connected accounts.
type VerificationNotifier interface {
	IsOnline(uid string) bool
	NotifyVerification(ctx context.Context, uid, code string) error
}

// Stats are cumulative counters of handled events.
type Stats struct {
	Delivered   uint64
	Offline     uint64
	Rejected    uint64
	Reconnects  uint64
	ResolveMiss uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithBackoff sets the reconnect backoff bounds. lo also sets the
// reconnect rate floor.
func WithBackoff(lo, hi time.Duration) Option {
	return func(b *Bridge) {
		if lo > 0 {
			b.minBackoff = lo
		}
		if hi >= b.minBackoff {
			b.maxBackoff = hi
		}
	}
}

// WithSeed fixes the jitter source.
func WithSeed(seed uint64) Option {
	return func(b *Bridge) { b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// Bridge consumes the change feed.
type Bridge struct {
	feed     store.ChangeFeed
	owners   store.ClaimOwnerResolver
	notifier VerificationNotifier
	log      *slog.Logger

	minBackoff     time.Duration
	maxBackoff     time.Duration
	resolveTimeout time.Duration
	limiter        *rate.Limiter
	rng            *rand.Rand

	running atomic.Bool

	delivered   atomic.Uint64
	offline     atomic.Uint64
	rejected    atomic.Uint64
	reconnects  atomic.Uint64
	resolveMiss atomic.Uint64
}

// New builds a Bridge.
func New(feed store.ChangeFeed, owners store.ClaimOwnerResolver, notifier VerificationNotifier, opts ...Option) (*Bridge, error) {
	if feed == nil || owners == nil || notifier == nil {
		return nil, fmt.Errorf("notify: feed, owner resolver and notifier are required")
	}
	now := uint64(time.Now().UnixNano())
	b := &Bridge{
		feed:           feed,
		owners:         owners,
		notifier:       notifier,
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		minBackoff:     DefaultMinBackoff,
		maxBackoff:     DefaultMaxBackoff,
		resolveTimeout: DefaultResolveTimeout,
		rng:            rand.New(rand.NewPCG(now, now>>7)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.limiter = rate.NewLimiter(rate.Every(b.minBackoff), 1)
	return b, nil
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Delivered:   b.delivered.Load(),
		Offline:     b.offline.Load(),
		Rejected:    b.rejected.Load(),
		Reconnects:  b.reconnects.Load(),
		ResolveMiss: b.resolveMiss.Load(),
	}
}

// Run subscribes and handles events until ctx is cancelled. It returns nil
// on cancellation.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("notify: bridge already running")
	}
	defer b.running.Store(false)

	attempt := 0
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
		err := b.consume(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}

		wait := b.backoff(attempt)
		attempt++
		b.reconnects.Add(1)
		b.log.Warn("change feed lost; reconnecting", "err", err, "attempt", attempt, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// consume runs one subscription until it fails. subscribed is called once
// the subscription is established.
func (b *Bridge) consume(ctx context.Context, subscribed func()) error {
	sub, err := b.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sub.Close(closeCtx)
	}()
	subscribed()
	b.log.Info("change feed subscribed")

	for {
		payload, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if err := b.Handle(ctx, payload); err != nil {
			b.log.Info("change event dropped", "err", err)
		}
	}
}

// Handle processes one raw payload. A nil error means the event was either
// delivered or its owner is not connected here.
func (b *Bridge) Handle(ctx context.Context, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: panic handling event: %v", r)
			b.log.Error("change event handler panicked", "panic", r)
		}
	}()

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.LinkKey == "" {
		b.rejected.Add(1)
		return ErrEmptyLinkKey
	}

	rctx, cancel := context.WithTimeout(ctx, b.resolveTimeout)
	defer cancel()
	uid, err := b.owners.ResolveClaimOwner(rctx, ev.LinkKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.resolveMiss.Add(1)
			return nil
		}
		return err
	}

	if !b.notifier.IsOnline(uid) {
		b.offline.Add(1)
		return nil
	}
	if err := b.notifier.NotifyVerification(ctx, uid, ev.VerificationCode); err != nil {
		return err
	}
	b.delivered.Add(1)
	b.log.Info("verification code pushed", "uid", uid, "event_id", ev.ID)
	return nil
}

// backoff returns the wait before reconnect attempt n: min*2^n capped at
// max, with the upper half jittered.
func (b *Bridge) backoff(n int) time.Duration {
	d := b.minBackoff
	for i := 0; i < n && d < b.maxBackoff; i++ {
		d *= 2
	}
	if d > b.maxBackoff {
		d = b.maxBackoff
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(b.rng.Int64N(int64(half)+1))
}
