// Package otel publishes goSyncAuth engine metrics through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per histogram, with an "le" attribute per bucket. A
// single callback reads [goSyncAuth.Engine.MetricsSnapshot] on each collection
// cycle. [WithAttributes] stamps every observation, usually with the shard
// name.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
