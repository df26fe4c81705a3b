package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted, not queued.
	DropIfFull bool
	// Logger receives sink panics. Nil discards them.
	Logger *slog.Logger
}

// Dispatcher hands events to a Sink from a single goroutine. Events reach
// the sink in Emit order.
type Dispatcher struct {
	sink       Sink
	log        *slog.Logger
	queue      chan Event
	stop       chan struct{}
	stopped    chan struct{}
	dropIfFull bool

	closing atomic.Bool
	once    sync.Once

	dropped atomic.Uint64
	panics  atomic.Uint64

	mu           sync.Mutex
	droppedByTyp map[string]uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled. A
// nil *Dispatcher accepts every call and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dispatcher{
		sink:         sink,
		log:          log,
		queue:        make(chan Event, size),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
		dropIfFull:   cfg.DropIfFull,
		droppedByTyp: make(map[string]uint64),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver isolates the loop from a panicking sink.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("audit sink panicked", "event", ev.EventType, "panic", r)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. In blocking mode it waits for queue space until ctx is
// done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev.EventType)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.droppedByTyp[eventType]++
	d.mu.Unlock()
}

// Close stops accepting events, delivers what is queued, and waits for the
// loop to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

// Dropped is the total number of events lost to a full queue or a done ctx.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.droppedByTyp))
	for k, v := range d.droppedByTyp {
		out[k] = v
	}
	return out
}

// SinkPanics counts sink calls that panicked.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
