package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"wisata/cmd/identity"
	"wisata/cmd/internal/auth/session"
	"wisata/cmd/internal/device"
)

// fakeUsers is an in-memory UserStore for handler tests.
type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]identity.UserAuth
	byID    map[string]identity.UserAuth
	nextID  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: make(map[string]identity.UserAuth),
		byID:    make(map[string]identity.UserAuth),
	}
}

func (f *fakeUsers) CreateUser(_ context.Context, in identity.CreateUserInput) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	norm := identity.NormalizeEmail(in.Email)
	if _, exists := f.byEmail[norm]; exists {
		return identity.User{}, identity.ConflictError{Op: "fake.CreateUser", Field: "email"}
	}

	hash, err := identity.HashPassword(in.Password, identity.DefaultArgon2idParams())
	if err != nil {
		return identity.User{}, err
	}

	f.nextID++
	u := identity.User{
		ID:        fmt.Sprintf("user-%03d", f.nextID),
		Name:      in.Name,
		Email:     in.Email,
		EmailNorm: norm,
		Role:      identity.RoleUser,
		Active:    true,
		CreatedAt: in.Now,
	}
	ua := identity.UserAuth{User: u, PasswordHash: hash}
	f.byEmail[norm] = ua
	f.byID[u.ID] = ua
	return u, nil
}

func (f *fakeUsers) GetAuthByEmail(_ context.Context, email string) (identity.UserAuth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ua, ok := f.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.UserAuth{}, identity.NotFoundError{Op: "fake.GetAuthByEmail", Resource: "user"}
	}
	return ua, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ua, ok := f.byID[id]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "fake.GetUserByID", Resource: "user"}
	}
	return ua.User, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, in identity.UpdateProfileInput) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ua, ok := f.byID[in.ID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "fake.UpdateProfile", Resource: "user"}
	}

	if in.Email != nil {
		norm := identity.NormalizeEmail(*in.Email)
		if other, exists := f.byEmail[norm]; exists && other.ID != ua.ID {
			return identity.User{}, identity.ConflictError{Op: "fake.UpdateProfile", Field: "email"}
		}
		delete(f.byEmail, ua.EmailNorm)
		ua.Email = *in.Email
		ua.EmailNorm = norm
	}
	if in.Name != nil {
		ua.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := identity.HashPassword(*in.Password, identity.DefaultArgon2idParams())
		if err != nil {
			return identity.User{}, err
		}
		ua.PasswordHash = hash
	}

	f.byID[ua.ID] = ua
	f.byEmail[ua.EmailNorm] = ua
	return ua.User, nil
}

func (f *fakeUsers) setRole(id, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ua, ok := f.byID[id]; ok {
		ua.Role = role
		f.byID[id] = ua
		f.byEmail[ua.EmailNorm] = ua
	}
}

type testEnv struct {
	handler  *Handler
	mux      *http.ServeMux
	users    *fakeUsers
	sessions *session.InMemoryStore
	devices  *device.InMemoryStore
}

func newTestEnv(t *testing.T, mutate func(*session.Config)) *testEnv {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	if mutate != nil {
		mutate(&sessCfg)
	}

	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	// Mirror production wiring: the two in-memory stores bridge each other.
	var devStore *device.InMemoryStore
	sessStore := session.NewInMemoryStore(session.WithDeviceBridge(
		func(deviceID string) { devStore.Deactivate(deviceID) },
		func(deviceID string) bool { return devStore.Active(deviceID) },
	))
	sessSvc := session.NewService(sessCfg, sessStore, tokens)

	devStore = device.NewInMemoryStore(device.WithSessionDestroyer(func(deviceID string) {
		sessStore.DeleteForDevice(deviceID)
	}))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	devices := device.NewRegistry(devStore, device.WithLogger(log))

	users := newFakeUsers()

	cfg := LoadConfigFromEnv()
	cfg.CookieSecure = false

	h, err := NewHandler(log, cfg, users, sessSvc, devices, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{handler: h, mux: mux, users: users, sessions: sessStore, devices: devStore}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, name, email, password string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", registerRequest{
		Name: name, Email: email, Password: password,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}
}

func (e *testEnv) login(t *testing.T, email, password, devName, devIdentifier string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", loginRequest{
		Email: email, Password: password,
		DeviceName: devName, DeviceIdentifier: devIdentifier, DeviceType: "web",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- tests ----

func TestRegister_CreatesUserAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/register", registerRequest{
		Name: "Dina", Email: "dina@example.com", Password: "correct horse battery",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Error {
		t.Fatalf("unexpected error envelope: %+v", e)
	}

	// Same email, different case: conflict.
	rec = env.do(t, http.MethodPost, "/auth/register", registerRequest{
		Name: "Dina Again", Email: "DINA@Example.Com", Password: "another password!",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); !e.Error || e.Code != "conflict" {
		t.Fatalf("expected conflict code, got %+v", e)
	}
}

func TestRegister_RejectsBadInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/register", registerRequest{
		Name: "No Email", Email: "not-an-email", Password: "some password",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestLogin_SetsHttpOnlySessionCookies(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")

	rec := env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Email: "dina@example.com", Password: "correct horse battery",
		DeviceName: "Firefox", DeviceIdentifier: "web-abc", DeviceType: "web",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	access := cookieByName(cookies, AccessCookieName)
	refresh := cookieByName(cookies, RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatalf("missing session cookies: %v", cookies)
	}
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly {
			t.Errorf("cookie %s not httpOnly", c.Name)
		}
		if c.SameSite != http.SameSiteStrictMode {
			t.Errorf("cookie %s SameSite = %v", c.Name, c.SameSite)
		}
		if c.Value == "" {
			t.Errorf("cookie %s empty", c.Name)
		}
	}

	e := decodeEnvelope(t, rec)
	if e.Error {
		t.Fatalf("error envelope: %+v", e)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")

	for _, req := range []loginRequest{
		{Email: "dina@example.com", Password: "wrong password", DeviceName: "D", DeviceIdentifier: "web-1"},
		{Email: "nobody@example.com", Password: "whatever pass", DeviceName: "D", DeviceIdentifier: "web-1"},
	} {
		rec := env.do(t, http.MethodPost, "/auth/login", req, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		if e := decodeEnvelope(t, rec); e.Code != "invalid_credentials" {
			t.Fatalf("expected invalid_credentials, got %+v", e)
		}
	}
}

func TestLogin_DeviceOwnedByAnotherUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	env.register(t, "Eko", "eko@example.com", "another passphrase")
	env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-shared")

	rec := env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Email: "eko@example.com", Password: "another passphrase",
		DeviceName: "Pixel", DeviceIdentifier: "android-shared", DeviceType: "android",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Code != "device_owned" {
		t.Fatalf("expected device_owned, got %+v", e)
	}
}

func TestVerify_ReportsSessionPresence(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodGet, "/auth/verify", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data verifyData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	_ = json.Unmarshal(b, &data)
	if !data.Authenticated {
		t.Fatalf("expected authenticated=true: %+v", e)
	}

	rec = env.do(t, http.MethodGet, "/auth/verify", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status without cookie = %d", rec.Code)
	}
	e = decodeEnvelope(t, rec)
	b, _ = json.Marshal(e.Data)
	data = verifyData{Authenticated: true}
	_ = json.Unmarshal(b, &data)
	if data.Authenticated {
		t.Fatalf("expected authenticated=false without cookie")
	}
}

func TestRefresh_RotatesCookiesAndInvalidatesOldRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")
	oldRefresh := cookieByName(cookies, RefreshCookieName)

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body %s", rec.Code, rec.Body.String())
	}
	rotated := rec.Result().Cookies()
	newRefresh := cookieByName(rotated, RefreshCookieName)
	newAccess := cookieByName(rotated, AccessCookieName)
	if newRefresh == nil || newAccess == nil {
		t.Fatalf("rotated cookies missing")
	}
	if newRefresh.Value == oldRefresh.Value {
		t.Fatalf("refresh token not rotated")
	}

	// The old refresh token is dead.
	rec = env.do(t, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{oldRefresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d", rec.Code)
	}

	// The rotated pair works.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, rotated)
	if rec.Code != http.StatusOK {
		t.Fatalf("me after rotation = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefresh_WithoutCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeEnvelope(t, rec); e.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %+v", e)
	}
}

func TestAuthErrorCodes(t *testing.T) {
	t.Parallel()

	// Zero skew + immediately-expired access tokens, long-lived sessions.
	env := newTestEnv(t, func(c *session.Config) {
		c.AccessTokenTTL = time.Nanosecond
		c.ClockSkew = 0
	})
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	// Authentic but expired token: token_expired so the client refreshes.
	rec := env.do(t, http.MethodGet, "/auth/me", nil, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Code != "token_expired" {
		t.Fatalf("expected token_expired, got %+v", e)
	}

	// Garbage token: invalid_token.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, []*http.Cookie{
		{Name: AccessCookieName, Value: "v4.public.garbage"},
	})
	if e := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || e.Code != "invalid_token" {
		t.Fatalf("expected invalid_token, got %d %+v", rec.Code, e)
	}

	// No cookie at all: unauthenticated.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, nil)
	if e := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || e.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %d %+v", rec.Code, e)
	}
}

func TestAuthErrorCodes_InactiveDeviceForbidden(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	// Deactivate the session's device underneath the live token.
	devices, err := env.devices.ListActive(context.Background(), userIDFor(t, env, "dina@example.com"))
	if err != nil || len(devices) != 1 {
		t.Fatalf("list devices: %v (%d)", err, len(devices))
	}
	env.devices.Deactivate(devices[0].ID)

	rec := env.do(t, http.MethodGet, "/auth/me", nil, cookies)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Code != "forbidden" {
		t.Fatalf("expected forbidden, got %+v", e)
	}
}

func TestLogout_DestroysSessionAndClearsCookies(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d body %s", rec.Code, rec.Body.String())
	}
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := cookieByName(rec.Result().Cookies(), name)
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared: %+v", name, c)
		}
	}

	// Session is gone; the same cookies no longer authenticate.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d", rec.Code)
	}
}

func TestLogout_DeactivatesDeviceInListing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	phoneCookies := env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-aaa")

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, phoneCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d body %s", rec.Code, rec.Body.String())
	}

	// A second device's listing must not show the logged-out phone anymore.
	webCookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-bbb")
	rec = env.do(t, http.MethodGet, "/device/list", nil, webCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("device list status = %d body %s", rec.Code, rec.Body.String())
	}
	var data deviceListData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	for _, d := range data.Devices {
		if d.Identifier == "android-aaa" {
			t.Fatalf("logged-out device still listed as active: %+v", d)
		}
	}

	// Logging back in on the phone reactivates it.
	phoneCookies = env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-aaa")
	rec = env.do(t, http.MethodGet, "/auth/me", nil, phoneCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("me after re-login = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutAll_DestroysAllSessions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	c1 := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-1")
	c2 := env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-2")

	rec := env.do(t, http.MethodPost, "/auth/logout-all", nil, c2)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all status = %d body %s", rec.Code, rec.Body.String())
	}

	for i, cookies := range [][]*http.Cookie{c1, c2} {
		rec = env.do(t, http.MethodGet, "/auth/me", nil, cookies)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("session %d survived logout-all: %d", i, rec.Code)
		}
	}
}

func TestDeviceList_ShowsActiveDevicesNewestFirst(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-1")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-2")

	rec := env.do(t, http.MethodGet, "/device/list", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var data deviceListData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(data.Devices))
	}
}

func TestDeviceRevoke_KillsOtherDevicesSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	webCookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-1")
	phoneCookies := env.login(t, "dina@example.com", "correct horse battery", "Pixel", "android-2")

	// Find the web device id from the phone's device list.
	rec := env.do(t, http.MethodGet, "/device/list", nil, phoneCookies)
	var data deviceListData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	var webID string
	for _, d := range data.Devices {
		if d.Identifier == "web-1" {
			webID = d.ID
		}
	}
	if webID == "" {
		t.Fatalf("web device not listed: %+v", data.Devices)
	}

	rec = env.do(t, http.MethodPost, "/device/revoke", deviceActionRequest{DeviceID: webID}, phoneCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d body %s", rec.Code, rec.Body.String())
	}

	// The revoked device's session is dead; the phone still works.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, webCookies)
	if rec.Code == http.StatusOK {
		t.Fatalf("revoked device still authenticated")
	}
	rec = env.do(t, http.MethodGet, "/auth/me", nil, phoneCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("phone lost its session: %d", rec.Code)
	}
}

func TestDeviceRevoke_UnknownDevice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-1")

	rec := env.do(t, http.MethodPost, "/device/revoke", deviceActionRequest{DeviceID: "no-such-device"}, cookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestMe_ReturnsUserAndCurrentDevice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodGet, "/auth/me", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var data meData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User.Email != "dina@example.com" {
		t.Fatalf("unexpected user: %+v", data.User)
	}
	if data.Device.Identifier != "web-abc" {
		t.Fatalf("unexpected device: %+v", data.Device)
	}
}

func TestEditProfile_UpdatesNameEmailPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodPost, "/auth/edit-profile", editProfileRequest{
		Name:            "Dina Lestari",
		Email:           "dina.lestari@example.com",
		CurrentPassword: "correct horse battery",
		NewPassword:     "staple battery horse",
	}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var data profileData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User.Name != "Dina Lestari" || data.User.Email != "dina.lestari@example.com" {
		t.Fatalf("unexpected profile: %+v", data.User)
	}

	// Old credentials are dead, the new pair logs in.
	rec = env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Email: "dina@example.com", Password: "staple battery horse",
		DeviceName: "Pixel", DeviceIdentifier: "android-1", DeviceType: "android",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old email still logs in: %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Email: "dina.lestari@example.com", Password: "correct horse battery",
		DeviceName: "Pixel", DeviceIdentifier: "android-1", DeviceType: "android",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still logs in: %d", rec.Code)
	}
	env.login(t, "dina.lestari@example.com", "staple battery horse", "Pixel", "android-1")
}

func TestEditProfile_WrongCurrentPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodPost, "/auth/edit-profile", editProfileRequest{
		Name:            "Imposter",
		CurrentPassword: "not the password",
	}, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %+v", e)
	}

	// Missing current_password and empty patches are rejected up front.
	rec = env.do(t, http.MethodPost, "/auth/edit-profile", editProfileRequest{Name: "X"}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing current_password status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/edit-profile", editProfileRequest{
		CurrentPassword: "correct horse battery",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch status = %d", rec.Code)
	}
}

func TestEditProfile_DuplicateEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	env.register(t, "Eko", "eko@example.com", "another passphrase")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodPost, "/auth/edit-profile", editProfileRequest{
		Email:           "EKO@example.com",
		CurrentPassword: "correct horse battery",
	}, cookies)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if e := decodeEnvelope(t, rec); e.Code != "conflict" {
		t.Fatalf("expected conflict, got %+v", e)
	}
}

func TestUserProfile_ReturnsUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	rec := env.do(t, http.MethodGet, "/user/profile", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var data profileData
	e := decodeEnvelope(t, rec)
	b, _ := json.Marshal(e.Data)
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User.Email != "dina@example.com" || data.User.Role != identity.RoleUser {
		t.Fatalf("unexpected profile: %+v", data.User)
	}

	rec = env.do(t, http.MethodGet, "/user/profile", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}

func TestRequireAdmin_GatesByRole(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.register(t, "Dina", "dina@example.com", "correct horse battery")
	cookies := env.login(t, "dina@example.com", "correct horse battery", "Firefox", "web-abc")

	gated := env.handler.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(cs []*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
		for _, c := range cs {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		gated.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if rec := serve(cookies); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d body %s", rec.Code, rec.Body.String())
	}

	env.users.setRole(userIDFor(t, env, "dina@example.com"), identity.RoleAdmin)
	if rec := serve(cookies); rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d body %s", rec.Code, rec.Body.String())
	}
}

func userIDFor(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	ua, err := env.users.GetAuthByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	return ua.ID
}
