package prometheus

import (
	"net/http"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() goSyncAuth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter is a [prometheus.Collector] over the engine's metric
// snapshot. Values are read at scrape time; nothing is cached.
type PrometheusExporter struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
}

// NewPrometheusExporter creates a collector reading from engine.
func NewPrometheusExporter(engine *goSyncAuth.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates a collector over any snapshot
// source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:     source,
		counters:   make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			internaldefs.AuditDroppedName,
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for i, def := range internaldefs.CounterDefs {
		p.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		p.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return p
}

// Describe implements [prometheus.Collector].
func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range p.counters {
		ch <- d
	}
	for _, d := range p.histograms {
		ch <- d
	}
	ch <- p.auditDropped
}

// Collect implements [prometheus.Collector]. A source with metrics disabled
// yields no samples.
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if p == nil || p.source == nil {
		return
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(p.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		// Sum is not tracked by the engine.
		ch <- prometheus.MustNewConstHistogram(p.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(p.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Handler serves only this collector from a private registry. Processes
// exporting other metrics register the exporter on their own registry
// instead.
func (p *PrometheusExporter) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(p)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
