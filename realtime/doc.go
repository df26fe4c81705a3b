// Package realtime is the push transport: authenticated WebSocket
// connections, one per account, and typed server-to-client messages.
//
// # Architecture boundaries
//
// Hub accepts a connection only after the session token verifies and the
// session guard grants the account's claim. The heartbeat pings the peer and
// extends the claim; when the connection ends the claim is released and the
// account's presence entries are dropped. Inbound frames are read only to
// observe liveness.
//
// # What this package must NOT do
//
//   - Perform network I/O while holding the connection map lock.
//   - Close a client's send queue (broadcasters may still be writing to it).
//   - Release a claim it does not hold.
package realtime
