package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"wisata/cmd/identity"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// It enforces the same identifier-ownership rules as the Postgres store.
type InMemoryStore struct {
	mu      sync.Mutex
	devices map[string]Device // device id -> device

	// destroyed records device ids whose sessions Revoke/Delete tore down.
	destroyed []string

	// destroySessions bridges to the session store: the Postgres device
	// store deletes session rows inside its own transactions, the memory
	// store delegates through this hook.
	destroySessions func(deviceID string)
}

// InMemoryOption configures the in-memory store.
type InMemoryOption func(*InMemoryStore)

// WithSessionDestroyer wires the hook invoked when Revoke/Delete must also
// destroy the device's sessions.
func WithSessionDestroyer(fn func(deviceID string)) InMemoryOption {
	return func(s *InMemoryStore) { s.destroySessions = fn }
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{devices: make(map[string]Device)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// DestroyedSessions lists device ids whose sessions were destroyed via
// Revoke/Delete (test hook).
func (s *InMemoryStore) DestroyedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.destroyed))
	copy(out, s.destroyed)
	return out
}

// Deactivate flips the device's active flag without touching its sessions.
// The in-memory session store calls this on logout; the Postgres session
// store updates the devices table inside the same transaction.
func (s *InMemoryStore) Deactivate(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[deviceID]; ok {
		d.Active = false
		s.devices[deviceID] = d
	}
}

// Active reports the device's active flag; unknown devices are inactive.
func (s *InMemoryStore) Active(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	return ok && d.Active
}

// Upsert registers the device for (UserID, Identifier).
func (s *InMemoryStore) Upsert(ctx context.Context, in UpsertInput) (Device, error) {
	if in.UserID == "" || in.Identifier == "" {
		return Device{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, d := range s.devices {
		if d.Identifier != in.Identifier {
			continue
		}
		if d.UserID != in.UserID {
			return Device{}, ErrIdentifierOwned
		}
		d.Name = in.Name
		d.Type = in.Type
		d.Active = true
		t := now
		d.LastActive = &t
		s.devices[id] = d
		return d, nil
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Device{}, err
	}
	t := now
	d := Device{
		ID:         id,
		UserID:     in.UserID,
		Name:       in.Name,
		Identifier: in.Identifier,
		Type:       in.Type,
		Active:     true,
		LastActive: &t,
		CreatedAt:  now,
	}
	s.devices[id] = d
	return d, nil
}

// GetByID loads a device by id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Device, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

// ListActive returns the user's active devices, newest first.
func (s *InMemoryStore) ListActive(ctx context.Context, userID string) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Device, 0, 8)
	for _, d := range s.devices {
		if d.UserID == userID && d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Revoke deactivates the device and destroys its session.
func (s *InMemoryStore) Revoke(ctx context.Context, userID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		s.mu.Unlock()
		return ErrNotFound
	}
	d.Active = false
	s.devices[deviceID] = d
	s.destroyed = append(s.destroyed, deviceID)
	fn := s.destroySessions
	s.mu.Unlock()

	if fn != nil {
		fn(deviceID)
	}
	return nil
}

// Delete removes the device and its session.
func (s *InMemoryStore) Delete(ctx context.Context, userID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.devices, deviceID)
	s.destroyed = append(s.destroyed, deviceID)
	fn := s.destroySessions
	s.mu.Unlock()

	if fn != nil {
		fn(deviceID)
	}
	return nil
}

// Touch updates last_active for a device.
func (s *InMemoryStore) Touch(ctx context.Context, now time.Time, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	t := now
	d.LastActive = &t
	s.devices[deviceID] = d
	return nil
}
