// Package cleanup runs the primary shard's periodic record-store sweep.
//
// # Architecture boundaries
//
// The scheduler owns ordering, fault isolation and pacing. Queries live
// behind the Store interface (store/postgres implements it); thresholds come
// from a PolicyFunc read at the start of every pass so configuration changes
// apply without restart.
//
// # What this package must NOT do
//
//   - Run on secondary shards; callers only start it when the role is primary.
//   - Let one failing task stop the others.
//   - Recurse over account ownership trees.
package cleanup
