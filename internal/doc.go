// Package internal holds coordination code that is private to goSyncAuth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - confload: koanf-based loading of process configuration
//   - flows: pure-function flow orchestrators for every Engine operation
//   - logging: slog logger construction
//   - metrics: lock-free counters and latency histograms
//   - sysinfo: periodic online-session broadcast
//   - throttle: per-IP failed-attempt tracking with timed temp bans
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSyncAuth API except through
//     root-level aliases.
//   - Be imported by any package outside the goSyncAuth module.
package internal
