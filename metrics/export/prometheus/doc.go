// Package prometheus exposes goSyncAuth engine metrics as a Prometheus
// collector.
//
// [NewPrometheusExporter] wraps an [goSyncAuth.Engine] in a
// [prometheus.Collector] that turns each scrape into a fresh snapshot read.
// Counter names are prefixed gosyncauth_*_total; the single histogram is
// gosyncauth_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the collector or mount Handler.
//   - Mutate engine state.
package prometheus
