package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wisata/cmd/identity"
	"wisata/cmd/internal/auth/session"
	"wisata/cmd/internal/device"
)

// Handler wires the HTTP auth and device endpoints to the identity, session
// and device services.
type Handler struct {
	log *slog.Logger
	cfg Config

	// pool is used only for best-effort audit writes and throttling counts.
	// It may be nil (dev mode, tests); both features then no-op.
	pool *pgxpool.Pool

	users    UserStore
	sessions SessionService
	devices  DeviceRegistry

	dummyHash string
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users UserStore, sessions SessionService, devices DeviceRegistry, pool *pgxpool.Pool) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil || devices == nil {
		return nil, errors.New("authapi: nil dependency")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		pool:     pool,
		users:    users,
		sessions: sessions,
		devices:  devices,
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth and device routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/verify", h.handleVerify)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout-all", h.handleLogoutAll)
	mux.HandleFunc("/auth/me", h.handleMe)
	mux.HandleFunc("/auth/edit-profile", h.handleEditProfile)
	mux.HandleFunc("/user/profile", h.handleUserProfile)
	mux.HandleFunc("/device/list", h.handleDeviceList)
	mux.HandleFunc("/device/revoke", h.handleDeviceRevoke)
	mux.HandleFunc("/device/delete", h.handleDeviceDelete)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name, email and password are required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid email address")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter, err := h.checkRegisterIPThrottle(ctx, ip, now); err != nil {
		h.log.Error("auth.register.throttle.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditRateLimited(ctx, "auth.register.rate_limited", ip, ua, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Name:     name,
		Email:    email,
		Password: req.Password,
		Now:      now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.auditRegisterFailed(ctx, ip, ua, email, "email_taken")
			writeError(w, http.StatusConflict, "conflict", "email is already registered")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRegisterSuccess(ctx, u.ID, ip, ua)
	writeData(w, http.StatusCreated, "registered", toUserPayload(u))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	deviceName := strings.TrimSpace(req.DeviceName)
	deviceIdentifier := strings.TrimSpace(req.DeviceIdentifier)
	if email == "" || req.Password == "" || deviceName == "" || deviceIdentifier == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, password, device_name and device_identifier are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	// IP-based throttling before any DB credential work.
	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, ip, now); err != nil {
		h.log.Error("auth.login.throttle.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditRateLimited(ctx, "auth.login.rate_limited", ip, ua, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	userAuth, err := h.users.GetAuthByEmail(ctx, email)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		}
		loginTotal.WithLabelValues("invalid_credentials").Inc()
		h.auditLoginFailed(ctx, nil, ip, ua, email, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := identity.VerifyPassword(req.Password, userAuth.PasswordHash)
	if err != nil || !okPw {
		loginTotal.WithLabelValues("invalid_credentials").Inc()
		h.auditLoginFailed(ctx, &userAuth.ID, ip, ua, email, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if !userAuth.Active {
		loginTotal.WithLabelValues("inactive").Inc()
		h.auditLoginFailed(ctx, &userAuth.ID, ip, ua, email, "inactive")
		writeError(w, http.StatusForbidden, "forbidden", "account deactivated")
		return
	}

	dev, err := h.devices.FindOrCreate(ctx, userAuth.ID, deviceIdentifier, deviceName, req.DeviceType, now)
	if err != nil {
		if errors.Is(err, device.ErrIdentifierOwned) {
			loginTotal.WithLabelValues("device_conflict").Inc()
			h.auditLoginFailed(ctx, &userAuth.ID, ip, ua, email, "device_owned")
			writeError(w, http.StatusConflict, "device_owned", "device is registered to another account")
			return
		}
		h.log.Error("auth.login.device.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	issued, err := h.sessions.Login(ctx, now, userAuth.ID, dev.ID)
	if err != nil {
		h.log.Error("auth.login.session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	loginTotal.WithLabelValues("success").Inc()
	h.auditLoginSuccess(ctx, userAuth.ID, issued.SessionID, ip, ua)

	h.setSessionCookies(w, issued.AccessToken, issued.AccessExp, issued.RefreshToken, issued.SessionExp)
	writeData(w, http.StatusOK, "logged in", loginData{
		User:      toUserPayload(userAuth.User),
		Device:    toDevicePayload(dev),
		ExpiresAt: issued.SessionExp,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token, ok := tokenFromCookie(r, AccessCookieName)
	if !ok {
		writeData(w, http.StatusOK, "unauthenticated", verifyData{Authenticated: false})
		return
	}
	if _, err := h.sessions.VerifyAccess(r.Context(), time.Now().UTC(), token); err != nil {
		writeData(w, http.StatusOK, "unauthenticated", verifyData{Authenticated: false})
		return
	}
	writeData(w, http.StatusOK, "authenticated", verifyData{Authenticated: true})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	refreshToken, ok := tokenFromCookie(r, RefreshCookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "refresh token required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	issued, err := h.sessions.Refresh(ctx, now, refreshToken)
	if err != nil {
		h.clearSessionCookies(w)
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			refreshTotal.WithLabelValues("session_expired").Inc()
			writeError(w, http.StatusUnauthorized, "session_expired", "session expired")
		case errors.Is(err, session.ErrSessionNotFound):
			refreshTotal.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		default:
			refreshTotal.WithLabelValues("error").Inc()
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	refreshTotal.WithLabelValues("success").Inc()
	h.auditRefreshSuccess(ctx, issued.SessionID, ip, ua)

	h.setSessionCookies(w, issued.AccessToken, issued.AccessExp, issued.RefreshToken, issued.SessionExp)
	writeData(w, http.StatusOK, "refreshed", map[string]any{
		"expires_at": issued.SessionExp,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token, ok := tokenFromCookie(r, AccessCookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.Logout(ctx, now, token); err != nil {
		// Cookies are cleared either way: the client's session is over.
		h.clearSessionCookies(w)
		h.writeAuthError(w, err)
		return
	}

	h.auditLogout(ctx, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	n, err := h.sessions.LogoutAll(ctx, id.UserID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogoutAll(ctx, id.UserID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, "logged out everywhere", map[string]any{
		"sessions_destroyed": n,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	u, err := h.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	dev, err := h.devices.Get(ctx, id.DeviceID)
	if err != nil {
		h.log.Error("auth.me.device.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.devices.TouchLastActive(id.DeviceID)
	writeData(w, http.StatusOK, "ok", meData{
		User:   toUserPayload(u),
		Device: toDevicePayload(dev),
	})
}

func (h *Handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req editProfileRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if req.CurrentPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "current_password is required")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" && email == "" && req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid email address")
			return
		}
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	u, err := h.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		h.log.Error("auth.profile.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Profile changes re-verify the password even on an authenticated session.
	userAuth, err := h.users.GetAuthByEmail(ctx, u.Email)
	if err != nil {
		h.log.Error("auth.profile.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	okPw, err := identity.VerifyPassword(req.CurrentPassword, userAuth.PasswordHash)
	if err != nil || !okPw {
		h.auditProfileFailed(ctx, id.UserID, ip, ua, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	in := identity.UpdateProfileInput{ID: id.UserID}
	if name != "" {
		in.Name = &name
	}
	if email != "" {
		in.Email = &email
	}
	if req.NewPassword != "" {
		in.Password = &req.NewPassword
	}

	updated, err := h.users.UpdateProfile(ctx, in)
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.auditProfileFailed(ctx, id.UserID, ip, ua, "email_taken")
			writeError(w, http.StatusConflict, "conflict", "email is already registered")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		default:
			h.log.Error("auth.profile.update.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.insertAudit(ctx, "auth.profile.updated", &id.UserID, ip, ua, nil)
	writeData(w, http.StatusOK, "profile updated", profileData{User: toUserPayload(updated)})
}

func (h *Handler) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

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
		h.log.Error("auth.profile.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeData(w, http.StatusOK, "ok", profileData{User: toUserPayload(u)})
}

func (h *Handler) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	devices, err := h.devices.List(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("device.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeData(w, http.StatusOK, "ok", deviceListData{Devices: toDevicePayloads(devices)})
}

func (h *Handler) handleDeviceRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleDeviceAction(w, r, "device.revoke", h.devices.Revoke)
}

func (h *Handler) handleDeviceDelete(w http.ResponseWriter, r *http.Request) {
	h.handleDeviceAction(w, r, "device.delete", h.devices.Delete)
}

func (h *Handler) handleDeviceAction(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, userID, deviceID string) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req deviceActionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device_id is required")
		return
	}

	ctx := r.Context()
	if err := fn(ctx, id.UserID, deviceID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		h.log.Error(action+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.insertAudit(ctx, action, &id.UserID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), map[string]any{
		"device_id": deviceID,
	})

	// Acting on the device behind the current session ends that session too;
	// drop the cookies so the client does not keep dead credentials.
	if deviceID == id.DeviceID {
		h.clearSessionCookies(w)
	}

	writeData(w, http.StatusOK, "ok", nil)
}
