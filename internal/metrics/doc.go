// Package metrics records authorization counters and the authorize latency
// histogram.
//
// Each [MetricID] owns one cache-line-padded uint64 incremented with
// sync/atomic, so concurrent Authorize calls on different counters never
// share a line. The latency histogram has 8 fixed buckets, 5ms up to +Inf.
// Recording never allocates.
//
// Exporters under metrics/export read [Snapshot] values; nothing here
// knows about Prometheus or OTel.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import goSyncAuth or any sibling package.
//   - Keep process-global state; every Engine owns its Metrics.
package metrics
