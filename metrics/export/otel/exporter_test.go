package otel

import (
	"context"
	"sync"
	"testing"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSyncAuth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSyncAuth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSyncAuth.MetricsSnapshot{
		Counters:   make(map[goSyncAuth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSyncAuth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosyncauth-test")

	src := &fakeSource{
		snapshot: goSyncAuth.MetricsSnapshot{
			Counters: map[goSyncAuth.MetricID]uint64{
				goSyncAuth.MetricAuthSuccess: 3,
			},
			Histograms: map[goSyncAuth.MetricID][]uint64{
				goSyncAuth.MetricAuthorizeLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosyncauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosyncauth-test")

	src := &fakeSource{
		snapshot: goSyncAuth.MetricsSnapshot{
			Counters: map[goSyncAuth.MetricID]uint64{
				goSyncAuth.MetricAuthSuccess: 1,
			},
			Histograms: map[goSyncAuth.MetricID][]uint64{
				goSyncAuth.MetricAuthorizeLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSyncAuth.MetricAuthSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterObservesBucketsWithAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosyncauth-test")

	src := &fakeSource{
		snapshot: goSyncAuth.MetricsSnapshot{
			Counters: map[goSyncAuth.MetricID]uint64{
				goSyncAuth.MetricTokenIssued: 5,
			},
			Histograms: map[goSyncAuth.MetricID][]uint64{
				goSyncAuth.MetricAuthorizeLatency: {2, 1, 0, 0, 0, 0, 0, 1},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src, WithAttributes(attribute.String("shard", "eu-1")))
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var issued int64 = -1
	buckets := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "gosyncauth_token_issued_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 1 {
					t.Fatalf("unexpected token issued data %#v", m.Data)
				}
				dp := sum.DataPoints[0]
				if shard, _ := dp.Attributes.Value("shard"); shard.AsString() != "eu-1" {
					t.Fatalf("expected shard attribute, got %v", dp.Attributes)
				}
				issued = dp.Value
			case "gosyncauth_authorize_latency_seconds_bucket":
				gauge, ok := m.Data.(metricdata.Gauge[int64])
				if !ok {
					t.Fatalf("unexpected bucket data %#v", m.Data)
				}
				for _, dp := range gauge.DataPoints {
					le, _ := dp.Attributes.Value("le")
					buckets[le.AsString()] = dp.Value
				}
			}
		}
	}

	if issued != 5 {
		t.Fatalf("expected 5 issued tokens, got %d", issued)
	}
	if buckets["0_005"] != 2 || buckets["0_01"] != 3 || buckets["inf"] != 4 {
		t.Fatalf("unexpected cumulative buckets %v", buckets)
	}
}
