package content

import "errors"

var (
	// ErrNotFound is returned when a destination or gallery item is absent.
	ErrNotFound = errors.New("content not found")

	// ErrSlugTaken is returned when a destination slug already exists.
	ErrSlugTaken = errors.New("destination slug already exists")

	// ErrInvalidInput is returned for missing or malformed parameters.
	ErrInvalidInput = errors.New("invalid input")
)
