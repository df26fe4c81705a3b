// Package notify bridges record-store change events to the push transport.
//
// A Bridge holds one subscription to the account-claim change feed. Each
// event names a link key; the bridge resolves the owning account and, when
// that account has a live connection on this shard, pushes the verification
// code to it. Lost subscriptions are re-established with capped exponential
// backoff plus jitter, never faster than the configured floor.
package notify
