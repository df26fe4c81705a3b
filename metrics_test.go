package goSyncAuth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricAuthSuccess)

	if got := m.Value(MetricAuthSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricAuthSuccess)
	m.Inc(MetricAuthSuccess)
	m.Inc(MetricAuthSuccess)

	if got := m.Value(MetricAuthSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricTokenIssued)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricTokenIssued); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricAuthorizeLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricAuthorizeLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricAuthSuccess)
	m.Inc(MetricAuthFailure)
	m.Inc(MetricAuthFailure)
	m.Observe(MetricAuthorizeLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricAuthSuccess] != 1 {
		t.Fatalf("expected MetricAuthSuccess=1 got %d", snap.Counters[MetricAuthSuccess])
	}
	if snap.Counters[MetricAuthFailure] != 2 {
		t.Fatalf("expected MetricAuthFailure=2 got %d", snap.Counters[MetricAuthFailure])
	}
	if len(snap.Histograms[MetricAuthorizeLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricAuthorizeLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricAuthorizeLatency][0])
	}
}

func TestAuthorizeRecordsLatencyWhenEnabled(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Metrics.EnableLatencyHistograms = true
	})

	if _, err := h.engine.Authorize(context.Background(), AuthRequest{
		IP:                "203.0.113.7",
		HashedSecretKey:   "unknown",
		CharacterIdentity: "Alice Example@Shard",
	}); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricAuthorizeLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
	if snap.Counters[MetricAuthAttempt] != 1 || snap.Counters[MetricAuthFailure] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
}
