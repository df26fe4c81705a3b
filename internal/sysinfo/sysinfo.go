// Package sysinfo periodically publishes fleet-wide session counts to
// connected clients and to the online-players gauge.
package sysinfo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSyncAuth/realtime"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultInterval is the broadcast period.
const DefaultInterval = 30 * time.Second

// Counter reports live sessions across every shard.
type Counter interface {
	CountActive(ctx context.Context) (int, error)
}

// Pusher delivers frames to this shard's connections.
type Pusher interface {
	PushSystemInfo(ctx context.Context, info realtime.SystemInfo) (int, error)
	PushServerMessage(ctx context.Context, uid string, msg realtime.ServerMessage) (int, error)
}

// MessageFunc returns the current operator notice; empty means none.
type MessageFunc func() string

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.log = l
		}
	}
}

// WithShardName stamps every update with the shard's name.
func WithShardName(name string) Option {
	return func(b *Broadcaster) { b.shard = name }
}

// WithGauge mirrors the fleet count into g.
func WithGauge(g prometheus.Gauge) Option {
	return func(b *Broadcaster) { b.gauge = g }
}

// WithServerMessage pushes the notice returned by fn to everyone whenever it
// changes to a non-empty value.
func WithServerMessage(fn MessageFunc) Option {
	return func(b *Broadcaster) { b.message = fn }
}

// Broadcaster runs the periodic system-info push.
type Broadcaster struct {
	counter  Counter
	pusher   Pusher
	interval time.Duration
	shard    string
	gauge    prometheus.Gauge
	message  MessageFunc
	log      *slog.Logger

	mu          sync.Mutex
	lastMessage string
}

// New builds a Broadcaster. counter and pusher are required.
func New(counter Counter, pusher Pusher, opts ...Option) (*Broadcaster, error) {
	if counter == nil || pusher == nil {
		return nil, errors.New("sysinfo: counter and pusher are required")
	}
	b := &Broadcaster{
		counter:  counter,
		pusher:   pusher,
		interval: DefaultInterval,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Run ticks until ctx is cancelled, then returns nil.
func (b *Broadcaster) Run(ctx context.Context) error {
	t := time.NewTicker(b.interval)
	defer t.Stop()

	b.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			b.Tick(ctx)
		}
	}
}

// Tick performs one broadcast. A failed count skips the system-info push
// but not the server message.
func (b *Broadcaster) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("sysinfo tick panicked", "panic", r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()

	if online, err := b.counter.CountActive(cctx); err != nil {
		b.log.Warn("count active sessions failed", "error", err)
	} else {
		if b.gauge != nil {
			b.gauge.Set(float64(online))
		}
		n, err := b.pusher.PushSystemInfo(cctx, realtime.SystemInfo{OnlineUsers: online, ShardName: b.shard})
		if err != nil {
			b.log.Warn("push system info failed", "error", err)
		} else {
			b.log.Debug("system info pushed", "online", online, "recipients", n)
		}
	}

	b.pushMessage(cctx)
}

func (b *Broadcaster) pushMessage(ctx context.Context) {
	if b.message == nil {
		return
	}
	msg := b.message()

	b.mu.Lock()
	changed := msg != b.lastMessage
	b.lastMessage = msg
	b.mu.Unlock()

	if !changed || msg == "" {
		return
	}
	if _, err := b.pusher.PushServerMessage(ctx, "", realtime.ServerMessage{Severity: realtime.SeverityInfo, Message: msg}); err != nil {
		b.log.Warn("push server message failed", "error", err)
	}
}
