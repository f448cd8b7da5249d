package identity

import "errors"

// Sentinel error kinds. Stable for errors.Is and for the handler layer's
// mapping onto HTTP status codes.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")
)
