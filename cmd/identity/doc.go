// Package identity implements Wisata's identity & authentication foundation.
//
// It contains security primitives (ULID, password hashing, token hashing)
// and the user store used by the HTTP auth layer.
//
// This package is intentionally dependency-light and security-first.
package identity
