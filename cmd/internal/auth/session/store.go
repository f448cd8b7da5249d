package session

import (
	"context"
	"time"
)

// Row mirrors the wisata.sessions row used by the session subsystem.
// Token values are never stored; only their 64-char hex hashes.
type Row struct {
	ID               string
	UserID           string
	DeviceID         string
	AccessTokenHash  string
	RefreshTokenHash string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// AuthRow is a session row joined with the active flags of its user and
// device, loaded in one round-trip during access validation.
type AuthRow struct {
	Row
	UserActive   bool
	DeviceActive bool
}

// Store abstracts persistence for session state.
//
// Implementations must keep the one-session-per-(user,device) invariant:
// Replace atomically removes any previous row for the pair before inserting.
type Store interface {
	// Replace removes any existing session for (row.UserID, row.DeviceID)
	// and inserts row, atomically.
	Replace(ctx context.Context, row Row) error

	// GetByAccessHash loads a session by access token hash, joined with
	// user/device active flags. Returns ErrSessionNotFound when absent.
	GetByAccessHash(ctx context.Context, accessHash string) (AuthRow, error)

	// GetByRefreshHash loads a session by refresh token hash.
	// Returns ErrSessionNotFound when absent.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// Rotate replaces the token hashes and expiry of the session in place.
	// The update only applies while the row still carries oldRefreshHash
	// (the row is locked during the check, so concurrent rotations
	// serialize and exactly one wins). Returns false when the row was
	// gone or already rotated.
	Rotate(ctx context.Context, now time.Time, sessionID, oldRefreshHash, newAccessHash, newRefreshHash string, expiresAt time.Time) (bool, error)

	// Delete removes a single session row (idempotent).
	Delete(ctx context.Context, sessionID string) error

	// DeleteAndDeactivateDevice removes the session row and deactivates its
	// device in one transaction (logout semantics).
	DeleteAndDeactivateDevice(ctx context.Context, sessionID, deviceID string) error

	// DeleteAllForUser removes all session rows for a user. Devices are
	// left untouched. Returns the number of rows removed.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredBefore removes all session rows with expires_at <= now.
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}
