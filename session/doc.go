// Package session guards the one-active-session-per-account rule across the
// shard fleet using Redis as the shared ephemeral store.
//
// # Key layout
//
// One key per connected account, "<scope>:UID:<uid>", holding a holder token
// unique to the connection that claimed it and a TTL. The key is written
// with SET NX when a real-time connection is established, extended by the
// connection heartbeat, and removed on clean disconnect. An abrupt disconnect
// is recovered by TTL expiry.
//
// # Architecture boundaries
//
// All mutual exclusion is delegated to Redis atomicity (SET NX, Lua
// compare-and-delete); the [Guard] holds no local lock. Redis failures are
// reported as [ErrRedisUnavailable] and callers must fail closed.
//
// # What this package must NOT do
//
//   - Import goSyncAuth or jwt (no upward imports).
//   - Issue or verify tokens.
package session
