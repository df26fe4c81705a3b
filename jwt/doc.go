// Package jwt issues and verifies the self-contained session tokens handed to
// clients after authentication, plus the internal bearer tokens shards use to
// call each other.
//
// Tokens are HS256-signed with one secret shared by every shard, so a token
// minted anywhere in the fleet verifies everywhere without a store lookup.
package jwt
