package authapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wisata/cmd/identity"
	"wisata/cmd/internal/auth/session"
)

type ctxKey int

const identityKey ctxKey = 0

// IdentityFrom extracts the authenticated identity placed in the request
// context by RequireAuth or OptionalAuth.
func IdentityFrom(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey).(session.Identity)
	return id, ok
}

// RequireAuth validates the access cookie against the session store before
// letting the request through. Failures carry a stable code so clients can
// decide whether a silent refresh is worth attempting:
//
//	401 unauthenticated  — no cookie, or no session row behind the token
//	401 invalid_token    — token failed parsing or signature checks
//	401 token_expired    — token is authentic but past exp; refresh may help
//	401 session_expired  — session row expired (and was removed)
//	403 forbidden        — user or device has been deactivated
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		h.devices.TouchLastActive(id.DeviceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// RequireAdmin runs the RequireAuth checks and additionally rejects
// non-admin accounts with 403 forbidden. Content write endpoints sit behind
// this gate.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.authenticate(w, r)
		if !ok {
			return
		}

		u, err := h.users.GetUserByID(r.Context(), id.UserID)
		if err != nil {
			if identity.IsNotFound(err) {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			h.log.Error("auth.admin.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}

		h.devices.TouchLastActive(id.DeviceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// OptionalAuth attaches the identity when the access cookie checks out and
// lets the request proceed anonymously otherwise.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromCookie(r, AccessCookieName)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		id, err := h.sessions.VerifyAccess(r.Context(), time.Now().UTC(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		h.devices.TouchLastActive(id.DeviceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// authenticate runs the gateway checks and writes the error reply itself
// when they fail.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	token, ok := tokenFromCookie(r, AccessCookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return session.Identity{}, false
	}

	id, err := h.sessions.VerifyAccess(r.Context(), time.Now().UTC(), token)
	if err != nil {
		h.writeAuthError(w, err)
		return session.Identity{}, false
	}
	return id, true
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "access token expired")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid access token")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "session expired")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, session.ErrUserInactive), errors.Is(err, session.ErrDeviceInactive):
		writeError(w, http.StatusForbidden, "forbidden", "account or device deactivated")
	default:
		h.log.Error("auth.verify.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
