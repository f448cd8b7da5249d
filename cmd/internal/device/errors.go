package device

import "errors"

var (
	// ErrNotFound is returned when a device does not exist or is not owned
	// by the requesting user.
	ErrNotFound = errors.New("device not found")

	// ErrIdentifierOwned is returned when a device identifier is already
	// registered to a different user. The check happens before any write.
	ErrIdentifierOwned = errors.New("device identifier owned by another user")

	// ErrInvalidInput is returned for missing or malformed parameters.
	ErrInvalidInput = errors.New("invalid input")
)
