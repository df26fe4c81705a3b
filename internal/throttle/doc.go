// Package throttle tracks failed authentication attempts per client IP and
// derives short-lived temporary bans from them.
//
// # Window semantics
//
// A record is created on the first failure for an IP and counts every later
// failure. Once the count exceeds the configured threshold the IP is banned
// and exactly one reset worker is scheduled for it; when the worker fires
// the record is removed and the IP starts clean.
//
// # What this package must NOT do
//
//   - Share state between shards (records are process-local by design of the
//     deployment and are lost on restart).
//   - Hold a lock across unrelated IPs.
package throttle
