// Package authapi is Wisata's HTTP auth surface: registration, login,
// cookie-based session transport, refresh rotation, logout, and the
// device-management endpoints.
//
// Tokens travel in httpOnly cookies (accessToken, refreshToken); handlers map
// session/identity errors onto stable machine-readable codes so clients can
// tell "refresh might help" (token_expired) apart from "re-login required".
package authapi
