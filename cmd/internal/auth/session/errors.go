package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails parsing or
	// signature verification, or when its claims disagree with the session row.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when an access token has a valid signature
	// but is past its expiration. Callers use this to signal that a silent
	// refresh is worthwhile.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionNotFound is returned when a token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the backing session row is expired.
	// The row is deleted as a side effect (lazy cleanup).
	ErrSessionExpired = errors.New("session expired")

	// ErrUserInactive is returned when the session's user account is deactivated.
	ErrUserInactive = errors.New("user inactive")

	// ErrDeviceInactive is returned when the session's device is deactivated.
	ErrDeviceInactive = errors.New("device inactive")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
