// Package audit relays authorization decisions to pluggable sinks without
// blocking the caller.
//
// # Components
//
//   - [Sink]: event consumer (slog, JSON lines, channel, fan-out, no-op).
//   - [Dispatcher]: single-goroutine relay; drop-if-full or block-until-ctx
//     on a full queue, per-type drop counts, panic isolation per sink call.
//   - [Event]: timestamp, type, account UID, IP, outcome, coarse error code
//     and string metadata.
//
// # Architecture boundaries
//
// The Engine decides which events exist and what they carry. This package
// only buffers and delivers.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSyncAuth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
