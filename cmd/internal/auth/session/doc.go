// Package session implements Wisata's device-aware session model.
//
// Each session binds a user to a registered device; at most one session
// exists per (user, device) pair. The session row in Postgres is the
// authoritative validity source: deleting it revokes the credentials
// immediately, regardless of remaining token lifetime.
//
// Access tokens are issued as PASETO v4.public and are short-lived.
// Refresh tokens are opaque random strings. Both are stored hashed
// (HMAC-SHA256 when WISATA_TOKEN_HMAC_KEY is set; otherwise SHA-256 for
// dev/back-compat) and looked up by hash.
//
// Transport (HTTP cookies) integration is intentionally out of scope here.
package session
