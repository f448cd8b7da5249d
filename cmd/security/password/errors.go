package password

import "errors"

// Stable sentinel errors. Callers match with errors.Is and map them to API
// responses; the strings themselves are not part of the contract.
var (
	ErrPasswordTooShort = errors.New("password: too short")
	ErrPasswordTooLong  = errors.New("password: too long")
	ErrWeakPassword     = errors.New("password: too weak")
	ErrInvalidHash      = errors.New("password: invalid hash encoding")
)
