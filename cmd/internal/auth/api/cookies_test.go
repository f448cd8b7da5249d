package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetSessionCookies_Attributes(t *testing.T) {
	t.Parallel()

	h := &Handler{cfg: Config{CookiePath: "/", CookieSecure: true}}
	rec := httptest.NewRecorder()
	now := time.Now().UTC()

	h.setSessionCookies(rec, "access-value", now.Add(15*time.Minute), "refresh-value", now.Add(7*24*time.Hour))

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
			t.Errorf("cookie %s attributes: httpOnly=%v secure=%v samesite=%v", c.Name, c.HttpOnly, c.Secure, c.SameSite)
		}
	}

	access := cookieByName(cookies, AccessCookieName)
	refresh := cookieByName(cookies, RefreshCookieName)
	if access == nil || access.Value != "access-value" {
		t.Fatalf("access cookie: %+v", access)
	}
	if refresh == nil || refresh.Value != "refresh-value" {
		t.Fatalf("refresh cookie: %+v", refresh)
	}
	if !refresh.Expires.After(access.Expires) {
		t.Errorf("refresh cookie should outlive access cookie")
	}
}

func TestClearSessionCookies(t *testing.T) {
	t.Parallel()

	h := &Handler{cfg: Config{CookiePath: "/"}}
	rec := httptest.NewRecorder()
	h.clearSessionCookies(rec)

	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := cookieByName(rec.Result().Cookies(), name)
		if c == nil {
			t.Fatalf("cookie %s not present", name)
		}
		if c.Value != "" || c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired: %+v", name, c)
		}
	}
}

func TestTokenFromCookie(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := tokenFromCookie(r, AccessCookieName); ok {
		t.Fatalf("expected no token on bare request")
	}

	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: ""})
	if _, ok := tokenFromCookie(r, AccessCookieName); ok {
		t.Fatalf("empty cookie must not count")
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "tok"})
	got, ok := tokenFromCookie(r, AccessCookieName)
	if !ok || got != "tok" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}
