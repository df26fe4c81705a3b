package otel

import (
	"context"
	"errors"
	"fmt"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSyncAuth.MetricsSnapshot
	AuditDropped() uint64
}

// Option customizes an [OTelExporter].
type Option func(*OTelExporter)

// WithAttributes attaches attrs to every observation, typically the shard
// name so several shards can share one backend.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(e *OTelExporter) {
		e.attrs = append(e.attrs, attrs...)
	}
}

type observedCounter struct {
	id         goSyncAuth.MetricID
	instrument metric.Int64ObservableCounter
}

// Buckets are one gauge keyed by an "le" attribute, one series per bound.
type observedHistogram struct {
	id      goSyncAuth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
}

// OTelExporter publishes engine counters and latency buckets through an
// OpenTelemetry Meter.
type OTelExporter struct {
	source       metricsSource
	attrs        []attribute.KeyValue
	base         metric.ObserveOption
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments on meter that read the
// engine's counters at collection time.
func NewOTelExporter(meter metric.Meter, engine *goSyncAuth.Engine, opts ...Option) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine, opts...)
}

// NewOTelExporterFromSource is NewOTelExporter over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource, opts ...Option) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exporter)
		}
	}
	exporter.base = metric.WithAttributes(exporter.attrs...)

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*2+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}

		bucketName := def.Name + "_bucket"
		buckets, err := meter.Int64ObservableGauge(bucketName, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", bucketName, err)
		}
		h.buckets = buckets
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			le := append([]attribute.KeyValue{attribute.String("le", suffix)}, exporter.attrs...)
			h.bounds[i] = metric.WithAttributes(le...)
		}

		countName := def.Name + "_count"
		count, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = count

		observables = append(observables, buckets, count)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]), e.base)
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets, int64(cumulative[i]), h.bounds[i])
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), e.base)
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), e.base)
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
