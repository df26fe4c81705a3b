// Package goSyncAuth authenticates clients of a sharded real-time presence
// service and coordinates their sessions across the fleet.
//
// Clients present a client-hashed secret key (or a short-lived local-content
// id) together with their character identity. [Engine.Authorize] resolves the
// request to an [Outcome]; [Engine.Login] additionally refuses accounts that
// already hold a live session elsewhere and mints a signed session token that
// every shard accepts.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSyncAuth is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors and value types. Flow orchestration, audit dispatch,
// failed-attempt tracking and metric storage live under internal/ and are
// never exported. Long-running shard services (configuration sync, cleanup,
// change notifications, real-time push) live in their own packages and are
// wired together by cmd/gosyncauth.
//
// # What this package must NOT do
//
//   - Expose Redis clients, database pools or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder only
//     allocates until Build).
//   - Leak secret keys or tokens into logs, audit events or errors.
//   - Import any sub-package that re-imports goSyncAuth.
//
// # Performance contract
//
// Authorize performs at most two record-store round-trips on the success
// path (identity-ban check and credential lookup) and none while the caller
// is temporarily banned. Login adds one Redis round-trip.
package goSyncAuth
