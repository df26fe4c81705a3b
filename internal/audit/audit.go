package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one security-relevant engine decision. It never carries secret
// keys or tokens.
type Event struct {
	Timestamp time.Time         `json:"ts"`
	EventType string            `json:"event"`
	UserID    string            `json:"uid,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"meta,omitempty"`
}

// Sink receives events from the dispatcher goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink exposes events on a channel, mostly for tests.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink exposing events on a channel of size buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink appends one JSON object per line to a writer.
type JSONWriterSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed atomic.Uint64
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()
	if err != nil {
		s.failed.Add(1)
	}
}

// Failed counts events the writer rejected.
func (s *JSONWriterSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

// Emit forwards event to every sink in order.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// SlogSink writes each event as one structured log record. Failed events are
// logged at warn level.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink logs events at info level, failures at warn.
func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SlogSink{log: l.With("component", "audit")}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	if s == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 6+len(event.Metadata))
	attrs = append(attrs,
		slog.String("event", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("at", event.Timestamp),
	)
	if event.UserID != "" {
		attrs = append(attrs, slog.String("uid", event.UserID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	s.log.LogAttrs(ctx, level, "audit", attrs...)
}
