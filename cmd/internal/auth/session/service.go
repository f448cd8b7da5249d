package session

import (
	"context"
	"strings"
	"time"

	"wisata/cmd/identity"
)

// Service implements the high-level session operations for Wisata.
//
// It logs devices in (issuing access + refresh tokens), validates access
// tokens against the authoritative session row, rotates refresh tokens in
// place, and destroys sessions on logout.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
}

// Issued is the result of logging in or rotating a session.
// It includes a short-lived access token and an opaque refresh token.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	SessionExp   time.Time
}

// Identity is the authenticated principal attached to a request after
// access validation succeeds.
type Identity struct {
	UserID    string
	DeviceID  string
	SessionID string
}

// NewService constructs a Service with the provided configuration, store,
// and token manager.
func NewService(cfg Config, store Store, tokens AccessTokenManager) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens}
}

// Login creates a session for (userID, deviceID), replacing any session the
// pair already holds, and returns fresh tokens.
//
// Both tokens are generated before anything is written: if issuance fails,
// no state changes. Refresh tokens are opaque random strings and are never
// persisted in plaintext; only hashes are stored.
func (s *Service) Login(ctx context.Context, now time.Time, userID, deviceID string) (Issued, error) {
	accessToken, accessExp, err := s.tokens.Issue(userID, deviceID, now)
	if err != nil {
		return Issued{}, err
	}

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	sessionID, err := identity.NewULID(now)
	if err != nil {
		return Issued{}, err
	}

	sessionExp := now.Add(s.cfg.SessionTTL)

	row := Row{
		ID:               sessionID,
		UserID:           userID,
		DeviceID:         deviceID,
		AccessTokenHash:  hashTokenHex(accessToken),
		RefreshTokenHash: refreshHash,
		CreatedAt:        now,
		ExpiresAt:        sessionExp,
	}

	if err := s.store.Replace(ctx, row); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		SessionExp:   sessionExp,
	}, nil
}

// VerifyAccess verifies an access token and ensures the backing session is
// valid. The session row is authoritative: a cryptographically valid token
// whose row is gone is rejected with ErrSessionNotFound.
func (s *Service) VerifyAccess(ctx context.Context, now time.Time, token string) (Identity, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return Identity{}, err
	}

	row, err := s.store.GetByAccessHash(ctx, hashTokenHex(token))
	if err != nil {
		return Identity{}, err
	}

	// The row must agree with the token's claims.
	if row.UserID != claims.UserID || row.DeviceID != claims.DeviceID {
		return Identity{}, ErrInvalidToken
	}

	if !row.ExpiresAt.After(now) {
		// Lazy cleanup: the expired row is gone for all later requests too.
		_ = s.store.Delete(ctx, row.ID)
		return Identity{}, ErrSessionExpired
	}

	if !row.UserActive {
		return Identity{}, ErrUserInactive
	}
	if !row.DeviceActive {
		return Identity{}, ErrDeviceInactive
	}

	return Identity{
		UserID:    row.UserID,
		DeviceID:  row.DeviceID,
		SessionID: row.ID,
	}, nil
}

// Refresh rotates the session matched by the opaque refresh token:
// new access token, new refresh token, extended expiry, same session row.
//
// The old refresh token is invalid after rotation. Concurrent refreshes with
// the same token serialize in the store; exactly one wins and the others get
// ErrSessionNotFound.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshTokenPlain string) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	oldHash := hashTokenHex(refreshTokenPlain)

	row, err := s.store.GetByRefreshHash(ctx, oldHash)
	if err != nil {
		return Issued{}, err
	}

	if !row.ExpiresAt.After(now) {
		_ = s.store.Delete(ctx, row.ID)
		return Issued{}, ErrSessionExpired
	}

	accessToken, accessExp, err := s.tokens.Issue(row.UserID, row.DeviceID, now)
	if err != nil {
		return Issued{}, err
	}

	newRefreshPlain, newRefreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	sessionExp := now.Add(s.cfg.SessionTTL)

	ok, err := s.store.Rotate(ctx, now, row.ID, oldHash, hashTokenHex(accessToken), newRefreshHash, sessionExp)
	if err != nil {
		return Issued{}, err
	}
	if !ok {
		// Lost the race, or the session was destroyed in between.
		return Issued{}, ErrSessionNotFound
	}

	return Issued{
		SessionID:    row.ID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefreshPlain,
		SessionExp:   sessionExp,
	}, nil
}

// Logout destroys the session behind the access token and deactivates its
// device, in one transaction. The token must still verify; logout with a
// forged token is rejected the same way as any other authenticated call.
func (s *Service) Logout(ctx context.Context, now time.Time, token string) error {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return err
	}

	row, err := s.store.GetByAccessHash(ctx, hashTokenHex(token))
	if err != nil {
		return err
	}
	if row.UserID != claims.UserID || row.DeviceID != claims.DeviceID {
		return ErrInvalidToken
	}

	return s.store.DeleteAndDeactivateDevice(ctx, row.ID, row.DeviceID)
}

// LogoutAll destroys every session for a user. Devices are left untouched,
// so each device re-enters with a fresh login.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.store.DeleteAllForUser(ctx, userID)
}

// SweepExpired removes all sessions past their expiry. Intended to be run
// periodically; lazy per-request cleanup covers rows this misses.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpiredBefore(ctx, now)
}
