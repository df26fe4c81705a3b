// Package configsync keeps slowly-changing operational settings consistent
// across the shard fleet.
//
// # Schema
//
// Every setting is declared once as a typed [Field] with a compiled default,
// an accessor into the local [Settings] and a flag saying whether the primary
// shard is authoritative for it ("remote"). Lookups go through the explicit
// schema map; nothing inspects types at runtime.
//
// # Roles
//
// A shard is [RolePrimary] unless its local settings name a main server
// address. [Primary] serves local values and exposes remote fields over
// HTTP. [Secondary] serves non-remote fields locally and remote fields from
// a cache refreshed by a poll loop against the primary, falling back to
// defaults until the first successful fetch.
package configsync
