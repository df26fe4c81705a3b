package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, &countingSink{}); d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "auth_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
	d.Emit(context.Background(), Event{})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Emit(context.Background(), Event{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drop-if-full emit must not block")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}
	close(sink.gate)
	d.Close()
}

func TestSlogSinkWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: "auth_perma_banned",
		UserID:    "UID1",
		IP:        "10.0.0.1",
		Metadata:  map[string]string{"ident": "abc"},
	})

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log record: %v (%q)", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["event"] != "auth_perma_banned" || rec["uid"] != "UID1" || rec["ident"] != "abc" {
		t.Fatalf("unexpected record %v", rec)
	}
	if !strings.Contains(buf.String(), `"component":"audit"`) {
		t.Fatalf("missing component attribute: %s", buf.String())
	}
}

type panicSink struct {
	delivered atomic.Int64
}

func (s *panicSink) Emit(_ context.Context, ev Event) {
	if ev.EventType == "boom" {
		panic("sink failure")
	}
	s.delivered.Add(1)
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	sink := &panicSink{}
	var buf bytes.Buffer
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 8,
		Logger:     slog.New(slog.NewJSONHandler(&buf, nil)),
	}, sink)

	d.Emit(context.Background(), Event{EventType: "auth_success"})
	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "auth_failure"})
	d.Close()

	if got := sink.delivered.Load(); got != 2 {
		t.Fatalf("expected 2 delivered events around the panic, got %d", got)
	}
	if d.SinkPanics() != 1 {
		t.Fatalf("expected 1 recorded panic, got %d", d.SinkPanics())
	}
	if !strings.Contains(buf.String(), "audit sink panicked") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestDispatcherDroppedByType(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The first event may be picked up by the loop before the queue fills.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "duplicate_session"})
	}
	d.Emit(context.Background(), Event{EventType: "auth_temp_banned"})

	byType := d.DroppedByType()
	var sum uint64
	for _, n := range byType {
		sum += n
	}
	if sum != d.Dropped() {
		t.Fatalf("per-type drops %v must add up to %d", byType, d.Dropped())
	}
	if byType["auth_temp_banned"] != 1 {
		t.Fatalf("expected the temp-ban event to be dropped, got %v", byType)
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		d.Emit(ctx, Event{EventType: "auth_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected events abandoned on a done context to count as dropped")
	}
	close(sink.gate)
	d.Close()
}

func TestMultiSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	js := NewJSONWriterSink(&buf)
	ch := NewChannelSink(2)
	MultiSink{js, nil, ch}.Emit(context.Background(), Event{EventType: "duplicate_session", UserID: "UID7"})

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if rec["event"] != "duplicate_session" || rec["uid"] != "UID7" {
		t.Fatalf("unexpected json line %v", rec)
	}
	if ev := <-ch.Events(); ev.UserID != "UID7" {
		t.Fatalf("channel sink got %+v", ev)
	}
	if js.Failed() != 0 {
		t.Fatalf("unexpected write failures: %d", js.Failed())
	}
}
