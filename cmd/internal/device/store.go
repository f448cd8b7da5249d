package device

import (
	"context"
	"time"
)

// UpsertInput describes a login-time device registration.
type UpsertInput struct {
	UserID     string
	Identifier string
	Name       string
	Type       Type
	Now        time.Time
}

// Store abstracts persistence for the device registry.
//
// Implementations must enforce global identifier uniqueness: Upsert rejects
// an identifier owned by another user before writing anything.
type Store interface {
	// Upsert registers the device for (UserID, Identifier), reactivating and
	// refreshing an existing row, atomically. Returns ErrIdentifierOwned if
	// the identifier belongs to a different user.
	Upsert(ctx context.Context, in UpsertInput) (Device, error)

	// GetByID loads a device by id. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (Device, error)

	// ListActive returns the user's active devices, newest first.
	ListActive(ctx context.Context, userID string) ([]Device, error)

	// Revoke deactivates the device and destroys its session in one
	// transaction. Returns ErrNotFound unless the device is owned by userID.
	Revoke(ctx context.Context, userID, deviceID string) error

	// Delete removes the device and its session in one transaction.
	// Returns ErrNotFound unless the device is owned by userID.
	Delete(ctx context.Context, userID, deviceID string) error

	// Touch updates last_active (best-effort freshness marker).
	Touch(ctx context.Context, now time.Time, deviceID string) error
}
