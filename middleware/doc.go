// Package middleware exposes HTTP middleware that admits requests carrying a
// valid goSyncAuth bearer token.
//
// # Guards
//
//   - [Guard] admits tokens accepted by a [Verifier] whose access type is in
//     an allowed set.
//   - [RequireInternal] admits shard-to-shard tokens only; the primary's
//     configuration endpoint sits behind it.
//
// Client session tokens are checked by the endpoints that consume them
// (renewal, the real-time upgrade), not by a guard here.
//
// Each guard reads the Authorization header, verifies the token through the
// Engine, and injects the verified claims and client IP into the request
// context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the record store.
//   - Make authorization decisions beyond pass/reject.
package middleware
