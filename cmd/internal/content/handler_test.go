package content

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubGateway lets tests flip authentication and the admin role on and off
// without standing up the full auth stack.
type stubGateway struct {
	allow bool
	admin bool
}

func (g *stubGateway) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allow {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *stubGateway) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allow {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !g.admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *stubGateway) OptionalAuth(next http.Handler) http.Handler { return next }

type contentEnv struct {
	mux     *http.ServeMux
	store   *InMemoryStore
	gateway *stubGateway
}

func newContentEnv(t *testing.T, mutate func(*Config)) *contentEnv {
	t.Helper()

	cfg := Config{
		MaxBodyBytes:    1 << 20,
		ContactIPMax:    3,
		ContactIPWindow: time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	store := NewInMemoryStore()
	gateway := &stubGateway{allow: true, admin: true}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := NewHandler(log, cfg, store, gateway)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return &contentEnv{mux: mux, store: store, gateway: gateway}
}

func (e *contentEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	b, _ := json.Marshal(env.Data)
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"Pantai Kuta", "pantai-kuta"},
		{"  Danau Toba!  ", "danau-toba"},
		{"Gunung Bromo & Kawah Ijen", "gunung-bromo-kawah-ijen"},
		{"---", ""},
		{"Ubud 2024", "ubud-2024"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDestinations_CreateListGet(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{
		Name:        "Pantai Kuta",
		Description: "Sunset beach in Bali",
		Address:     "Kuta, Badung",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeData[destinationPayload](t, rec)
	if created.Slug != "pantai-kuta" {
		t.Fatalf("slug = %q", created.Slug)
	}

	// Duplicate name collides on slug.
	rec = env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Pantai  Kuta"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/destinations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	list := decodeData[[]destinationPayload](t, rec)
	if len(list) != 1 {
		t.Fatalf("expected 1 destination, got %d", len(list))
	}

	rec = env.do(t, http.MethodGet, "/destinations/pantai-kuta", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by slug: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeData[destinationPayload](t, rec)
	if got.ID != created.ID {
		t.Fatalf("id mismatch: %q vs %q", got.ID, created.ID)
	}

	rec = env.do(t, http.MethodGet, "/destinations/nowhere", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing slug: %d", rec.Code)
	}
}

func TestDestinations_CreateRequiresAuth(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)
	env.gateway.allow = false

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Pantai Kuta"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	// Reads stay public.
	rec = env.do(t, http.MethodGet, "/destinations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public list blocked: %d", rec.Code)
	}
}

func TestDestinations_WritesRequireAdmin(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Pantai Kuta"})
	created := decodeData[destinationPayload](t, rec)

	// Authenticated but not admin: all writes are forbidden.
	env.gateway.admin = false

	name := "Pantai Kuta Baru"
	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/destinations", destinationRequest{Name: "Lain"}},
		{http.MethodPut, "/destinations/" + created.ID, destinationUpdateRequest{Name: &name}},
		{http.MethodDelete, "/destinations/" + created.ID, nil},
	} {
		rec := env.do(t, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: status = %d body %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}

	// Reads stay public.
	rec = env.do(t, http.MethodGet, "/destinations/"+created.Slug, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public read blocked: %d", rec.Code)
	}
}

func TestDestinations_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{
		Name: "Danau Toba", Description: "Volcanic lake",
	})
	created := decodeData[destinationPayload](t, rec)
	rec = env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Gunung Bromo"})
	other := decodeData[destinationPayload](t, rec)

	rec = env.do(t, http.MethodPost, "/gallery", galleryRequest{
		DestinationID: created.ID, Title: "Mist", File: "gallery/toba-1.jpg", Kind: "photo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add gallery: %d %s", rec.Code, rec.Body.String())
	}

	// Rename re-derives the slug.
	name := "Danau Toba Utara"
	rec = env.do(t, http.MethodPut, "/destinations/"+created.ID, destinationUpdateRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	updated := decodeData[destinationPayload](t, rec)
	if updated.Slug != "danau-toba-utara" || updated.Description != "Volcanic lake" {
		t.Fatalf("unexpected destination after rename: %+v", updated)
	}
	if rec = env.do(t, http.MethodGet, "/destinations/danau-toba", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("old slug still resolves: %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, "/destinations/danau-toba-utara", nil); rec.Code != http.StatusOK {
		t.Fatalf("new slug missing: %d", rec.Code)
	}

	// Renaming into another destination's slug collides.
	taken := "Gunung  Bromo"
	rec = env.do(t, http.MethodPut, "/destinations/"+created.ID, destinationUpdateRequest{Name: &taken})
	if rec.Code != http.StatusConflict {
		t.Fatalf("slug collision: %d %s", rec.Code, rec.Body.String())
	}

	// An empty patch is rejected.
	rec = env.do(t, http.MethodPut, "/destinations/"+created.ID, destinationUpdateRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: %d", rec.Code)
	}

	// Delete removes the destination and its gallery.
	rec = env.do(t, http.MethodDelete, "/destinations/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodGet, "/destinations/danau-toba-utara", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted destination still resolves: %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/gallery", nil)
	if items := decodeData[[]galleryPayload](t, rec); len(items) != 0 {
		t.Fatalf("gallery survived delete: %+v", items)
	}

	// Unknown ids map to 404; the other destination is untouched.
	if rec = env.do(t, http.MethodDelete, "/destinations/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, "/destinations/"+other.Slug, nil); rec.Code != http.StatusOK {
		t.Fatalf("unrelated destination lost: %d", rec.Code)
	}
}

func TestGallery_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Kawah Ijen"})
	dest := decodeData[destinationPayload](t, rec)
	rec = env.do(t, http.MethodPost, "/gallery", galleryRequest{
		DestinationID: dest.ID, Title: "Blue fire", File: "gallery/ijen-1.jpg", Kind: "photo",
	})
	item := decodeData[galleryPayload](t, rec)

	title := "Blue fire at dawn"
	kind := "video"
	rec = env.do(t, http.MethodPut, "/gallery/"+item.ID, galleryUpdateRequest{Title: &title, Kind: &kind})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	updated := decodeData[galleryPayload](t, rec)
	if updated.Title != title || updated.Kind != "video" || updated.File != item.File {
		t.Fatalf("unexpected item after update: %+v", updated)
	}

	// Non-admin callers cannot touch items.
	env.gateway.admin = false
	if rec = env.do(t, http.MethodDelete, "/gallery/"+item.ID, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin delete: %d", rec.Code)
	}
	env.gateway.admin = true

	rec = env.do(t, http.MethodDelete, "/gallery/"+item.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodDelete, "/gallery/"+item.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rec.Code)
	}
}

func TestGallery_AddAndFilterByDestination(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Danau Toba"})
	dest := decodeData[destinationPayload](t, rec)
	rec = env.do(t, http.MethodPost, "/destinations", destinationRequest{Name: "Gunung Bromo"})
	other := decodeData[destinationPayload](t, rec)

	rec = env.do(t, http.MethodPost, "/gallery", galleryRequest{
		DestinationID: dest.ID, Title: "Morning mist", File: "gallery/toba-1.jpg", Kind: "photo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/gallery", galleryRequest{
		DestinationID: other.ID, Title: "Crater", File: "gallery/bromo-1.mp4", Kind: "video",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add 2: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/gallery?destination_id="+dest.ID, nil)
	filtered := decodeData[[]galleryPayload](t, rec)
	if len(filtered) != 1 || filtered[0].DestinationID != dest.ID {
		t.Fatalf("filter failed: %+v", filtered)
	}
	if filtered[0].Kind != "photo" {
		t.Fatalf("kind = %q", filtered[0].Kind)
	}

	rec = env.do(t, http.MethodGet, "/gallery", nil)
	all := decodeData[[]galleryPayload](t, rec)
	if len(all) != 2 {
		t.Fatalf("expected 2 items, got %d", len(all))
	}

	// Unknown destination rejected.
	rec = env.do(t, http.MethodPost, "/gallery", galleryRequest{
		DestinationID: "missing", Title: "x", File: "y.jpg",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown destination: %d", rec.Code)
	}
}

func TestContact_SubmitAndThrottle(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, func(c *Config) {
		c.ContactIPMax = 2
	})

	submit := func() *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/contact", contactRequest{
			Name: "Dina", Email: "dina@example.com", Message: "Is the park open on Sundays?",
		})
	}

	for i := 0; i < 2; i++ {
		if rec := submit(); rec.Code != http.StatusCreated {
			t.Fatalf("submit %d: %d %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := submit()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestContact_ListRequiresAuth(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)
	env.do(t, http.MethodPost, "/contact", contactRequest{
		Name: "Dina", Email: "dina@example.com", Message: "Halo!",
	})

	env.gateway.allow = false
	rec := env.do(t, http.MethodGet, "/contact", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	env.gateway.allow = true
	rec = env.do(t, http.MethodGet, "/contact", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	list := decodeData[[]contactPayload](t, rec)
	if len(list) != 1 || list[0].Name != "Dina" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestContact_RejectsBadEmail(t *testing.T) {
	t.Parallel()

	env := newContentEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/contact", contactRequest{
		Name: "Dina", Email: "not-an-email", Message: "Halo!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
}
