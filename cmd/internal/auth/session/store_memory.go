package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// It honors the same invariants as the Postgres store, including at most
// one session per (user, device) pair.
type InMemoryStore struct {
	mu   sync.Mutex
	rows map[string]Row // session id -> row

	// Active flags default to true for ids never marked otherwise.
	inactiveUsers   map[string]bool
	inactiveDevices map[string]bool

	// Optional bridge to the in-memory device store. The Postgres store
	// covers both directions inside its own transactions; in-memory wiring
	// passes the device store's methods in here instead.
	deactivateDevice func(deviceID string)
	deviceActive     func(deviceID string) bool
}

// InMemoryOption configures the in-memory store.
type InMemoryOption func(*InMemoryStore)

// WithDeviceBridge wires an external device store in: logout-driven device
// deactivation flows out through deactivate, and session validation reads
// the device's active flag through active instead of the local shadow map.
func WithDeviceBridge(deactivate func(deviceID string), active func(deviceID string) bool) InMemoryOption {
	return func(s *InMemoryStore) {
		s.deactivateDevice = deactivate
		s.deviceActive = active
	}
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		rows:            make(map[string]Row),
		inactiveUsers:   make(map[string]bool),
		inactiveDevices: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetUserActive flips a user's active flag (test/dev hook).
func (s *InMemoryStore) SetUserActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		delete(s.inactiveUsers, userID)
	} else {
		s.inactiveUsers[userID] = true
	}
}

// SetDeviceActive flips a device's active flag (test/dev hook).
func (s *InMemoryStore) SetDeviceActive(deviceID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		delete(s.inactiveDevices, deviceID)
	} else {
		s.inactiveDevices[deviceID] = true
	}
}

// DeviceActive reports the stored active flag for a device.
func (s *InMemoryStore) DeviceActive(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inactiveDevices[deviceID]
}

// DeleteForDevice removes every session row for a device. The Postgres
// device store does this inside its revoke/delete transactions; in-memory
// wiring bridges the two stores with this hook.
func (s *InMemoryStore) DeleteForDevice(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.rows {
		if r.DeviceID == deviceID {
			delete(s.rows, id)
			n++
		}
	}
	return n
}

// CountForUser returns the number of sessions held for a user.
func (s *InMemoryStore) CountForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

// Replace removes any existing session for (row.UserID, row.DeviceID) and inserts row.
func (s *InMemoryStore) Replace(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rows {
		if r.UserID == row.UserID && r.DeviceID == row.DeviceID {
			delete(s.rows, id)
		}
	}
	s.rows[row.ID] = row
	return nil
}

// GetByAccessHash loads a session by access token hash.
func (s *InMemoryStore) GetByAccessHash(ctx context.Context, accessHash string) (AuthRow, error) {
	if err := ctx.Err(); err != nil {
		return AuthRow{}, err
	}

	s.mu.Lock()
	var out AuthRow
	found := false
	for _, r := range s.rows {
		if r.AccessTokenHash == accessHash {
			out = AuthRow{
				Row:          r,
				UserActive:   !s.inactiveUsers[r.UserID],
				DeviceActive: !s.inactiveDevices[r.DeviceID],
			}
			found = true
			break
		}
	}
	active := s.deviceActive
	s.mu.Unlock()

	if !found {
		return AuthRow{}, ErrSessionNotFound
	}
	if active != nil {
		// The device store is authoritative when bridged; a re-login on a
		// logged-out device reactivates it there.
		out.DeviceActive = active(out.DeviceID)
	}
	return out, nil
}

// GetByRefreshHash loads a session by refresh token hash.
func (s *InMemoryStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.RefreshTokenHash == refreshHash {
			return r, nil
		}
	}
	return Row{}, ErrSessionNotFound
}

// Rotate replaces the token hashes and expiry in place (compare-and-swap).
func (s *InMemoryStore) Rotate(ctx context.Context, now time.Time, sessionID, oldRefreshHash, newAccessHash, newRefreshHash string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[sessionID]
	if !ok || r.RefreshTokenHash != oldRefreshHash {
		return false, nil
	}

	r.AccessTokenHash = newAccessHash
	r.RefreshTokenHash = newRefreshHash
	r.ExpiresAt = expiresAt
	s.rows[sessionID] = r
	return true, nil
}

// Delete removes a single session row (idempotent).
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sessionID)
	return nil
}

// DeleteAndDeactivateDevice removes the session and deactivates its device.
// With a device bridge wired, the deactivation also reaches the device store
// so the device drops out of active listings.
func (s *InMemoryStore) DeleteAndDeactivateDevice(ctx context.Context, sessionID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.rows, sessionID)
	s.inactiveDevices[deviceID] = true
	fn := s.deactivateDevice
	s.mu.Unlock()

	if fn != nil {
		fn(deviceID)
	}
	return nil
}

// DeleteAllForUser removes all session rows for a user.
func (s *InMemoryStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.rows {
		if r.UserID == userID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredBefore removes all session rows with expires_at <= now.
func (s *InMemoryStore) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.rows {
		if !r.ExpiresAt.After(now) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}
