// Package postgres implements the store contracts over PostgreSQL (pgx/v5).
//
// The pgx pool is owned by the caller; stores never close it. Table
// identifiers are schema-qualified and quoted with pgx.Identifier so the
// schema option cannot inject SQL.
//
// Expected tables (schema default "sync"):
//
//	users(uid, alias, last_logged_in)
//	auth(hashed_key, user_uid, primary_user_uid, is_banned)
//	banned_identities(character_identity, reason, banned_at)
//	banned_registrations(external_id, banned_at)
//	account_claims(external_id, link_key, user_uid, verification_code, started_at)
//	pair_requests(id, requester_uid, target_uid, created_at)
//	rooms(gid, owner_uid, is_ephemeral, created_at)
//	room_members(room_gid, user_uid)
//	upload_counters(user_uid, window_started_at, uploads)
//
// An account claim with a NULL started_at is completed; an open claim has
// started_at set and may reference a half-created user.
package postgres
