package device

import (
	"context"
	"log/slog"
	"time"
)

// Registry is the device-facing service layer: login-time registration,
// listing, revocation and removal.
type Registry struct {
	store Store
	log   *slog.Logger

	touchTimeout time.Duration
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithLogger sets the structured logger used for background work.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry constructs a Registry on top of a Store.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:        store,
		log:          slog.Default(),
		touchTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// FindOrCreate registers the device a login arrives from. The identifier is
// globally unique: a conflict with another user's device surfaces as
// ErrIdentifierOwned before any write happens.
func (r *Registry) FindOrCreate(ctx context.Context, userID, identifier, name, rawType string, now time.Time) (Device, error) {
	return r.store.Upsert(ctx, UpsertInput{
		UserID:     userID,
		Identifier: identifier,
		Name:       name,
		Type:       NormalizeType(rawType),
		Now:        now,
	})
}

// Get loads a single device by id.
func (r *Registry) Get(ctx context.Context, id string) (Device, error) {
	return r.store.GetByID(ctx, id)
}

// List returns the user's active devices, newest first.
func (r *Registry) List(ctx context.Context, userID string) ([]Device, error) {
	return r.store.ListActive(ctx, userID)
}

// Revoke deactivates a device owned by userID and destroys its session.
func (r *Registry) Revoke(ctx context.Context, userID, deviceID string) error {
	return r.store.Revoke(ctx, userID, deviceID)
}

// Delete removes a device owned by userID together with its session.
func (r *Registry) Delete(ctx context.Context, userID, deviceID string) error {
	return r.store.Delete(ctx, userID, deviceID)
}

// TouchLastActive updates the device's last_active marker in the background.
// The write is best-effort: failures are logged and never surface to the
// request that triggered them.
func (r *Registry) TouchLastActive(deviceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.touchTimeout)
		defer cancel()

		if err := r.store.Touch(ctx, time.Now().UTC(), deviceID); err != nil {
			r.log.Warn("device touch failed",
				slog.String("device_id", deviceID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
