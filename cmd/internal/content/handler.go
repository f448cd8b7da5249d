package content

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

// Gateway is the slice of the auth API the content handlers need: wrapping
// protected routes and identifying the caller.
type Gateway interface {
	RequireAuth(next http.Handler) http.Handler
	RequireAdmin(next http.Handler) http.Handler
	OptionalAuth(next http.Handler) http.Handler
}

// Config controls the content API.
type Config struct {
	MaxBodyBytes int64
	TrustProxy   bool

	// Contact form throttling per source IP.
	ContactIPMax    int
	ContactIPWindow time.Duration
}

// LoadConfigFromEnv loads content config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:    envInt64("WISATA_CONTENT_MAX_BODY_BYTES", 1<<20),
		TrustProxy:      envBool("WISATA_CONTENT_TRUST_PROXY", false),
		ContactIPMax:    envInt("WISATA_CONTENT_CONTACT_IP_MAX", 5),
		ContactIPWindow: envDuration("WISATA_CONTENT_CONTACT_IP_WINDOW", time.Hour),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

// Handler serves the destination, gallery and contact endpoints.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	store   Store
	gateway Gateway
}

// NewHandler constructs the content Handler.
func NewHandler(log *slog.Logger, cfg Config, store Store, gateway Gateway) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil || gateway == nil {
		return nil, errors.New("content: nil dependency")
	}
	return &Handler{log: log, cfg: cfg, store: store, gateway: gateway}, nil
}

// Register wires content routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/destinations", h.handleDestinations)
	mux.HandleFunc("/destinations/", h.handleDestinationItem)
	mux.HandleFunc("/gallery", h.handleGallery)
	mux.HandleFunc("/gallery/", h.handleGalleryItem)
	mux.HandleFunc("/contact", h.handleContact)
}

// ---- request/response shapes ----

type destinationRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       *string  `json:"image"`
	Address     string   `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type galleryRequest struct {
	DestinationID string `json:"destination_id"`
	Title         string `json:"title"`
	File          string `json:"file"`
	Kind          string `json:"kind"`
}

type destinationUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Address     *string  `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type galleryUpdateRequest struct {
	Title *string `json:"title"`
	File  *string `json:"file"`
	Kind  *string `json:"kind"`
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type destinationPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Image       *string   `json:"image"`
	Address     string    `json:"address"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CreatedAt   time.Time `json:"created_at"`
}

type galleryPayload struct {
	ID            string    `json:"id"`
	DestinationID string    `json:"destination_id"`
	Title         string    `json:"title"`
	File          string    `json:"file"`
	Kind          string    `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
}

type contactPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func toDestinationPayload(d Destination) destinationPayload {
	return destinationPayload{
		ID: d.ID, Name: d.Name, Slug: d.Slug, Description: d.Description,
		Image: d.Image, Address: d.Address,
		Latitude: d.Latitude, Longitude: d.Longitude, CreatedAt: d.CreatedAt,
	}
}

func toGalleryPayload(g GalleryItem) galleryPayload {
	return galleryPayload{
		ID: g.ID, DestinationID: g.DestinationID, Title: g.Title,
		File: g.File, Kind: string(g.Kind), CreatedAt: g.CreatedAt,
	}
}

func toContactPayload(m ContactMessage) contactPayload {
	return contactPayload{
		ID: m.ID, Name: m.Name, Email: m.Email, Message: m.Message, CreatedAt: m.CreatedAt,
	}
}

// ---- handlers ----

func (h *Handler) handleDestinations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDestinations(w, r)
	case http.MethodPost:
		h.gateway.RequireAdmin(http.HandlerFunc(h.createDestination)).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listDestinations(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListDestinations(r.Context())
	if err != nil {
		h.log.Error("content.destinations.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]destinationPayload, 0, len(list))
	for _, d := range list {
		out = append(out, toDestinationPayload(d))
	}
	writeData(w, http.StatusOK, "ok", out)
}

func (h *Handler) createDestination(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	d, err := h.store.CreateDestination(r.Context(), CreateDestinationInput{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlugTaken):
			writeError(w, http.StatusConflict, "conflict", "a destination with this name already exists")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.destinations.create.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusCreated, "created", toDestinationPayload(d))
}

// handleDestinationItem dispatches /destinations/{seg}: reads resolve the
// segment as a slug, admin writes resolve it as an id.
func (h *Handler) handleDestinationItem(w http.ResponseWriter, r *http.Request) {
	seg := strings.Trim(strings.TrimPrefix(r.URL.Path, "/destinations/"), "/")
	if seg == "" || strings.Contains(seg, "/") {
		writeError(w, http.StatusNotFound, "not_found", "destination not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getDestinationBySlug(w, r, seg)
	case http.MethodPut:
		h.gateway.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.updateDestination(w, r, seg)
		})).ServeHTTP(w, r)
	case http.MethodDelete:
		h.gateway.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.deleteDestination(w, r, seg)
		})).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getDestinationBySlug(w http.ResponseWriter, r *http.Request, slug string) {
	d, err := h.store.GetDestinationBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "destination not found")
			return
		}
		h.log.Error("content.destinations.get.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeData(w, http.StatusOK, "ok", toDestinationPayload(d))
}

func (h *Handler) updateDestination(w http.ResponseWriter, r *http.Request, id string) {
	var req destinationUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Name == nil && req.Description == nil && req.Image == nil &&
		req.Address == nil && req.Latitude == nil && req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	d, err := h.store.UpdateDestination(r.Context(), UpdateDestinationInput{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "destination not found")
		case errors.Is(err, ErrSlugTaken):
			writeError(w, http.StatusConflict, "conflict", "a destination with this name already exists")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.destinations.update.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusOK, "updated", toDestinationPayload(d))
}

func (h *Handler) deleteDestination(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.DeleteDestination(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "destination not found")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.destinations.delete.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusOK, "deleted", nil)
}

func (h *Handler) handleGallery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listGallery(w, r)
	case http.MethodPost:
		h.gateway.RequireAdmin(http.HandlerFunc(h.addGalleryItem)).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleGalleryItem dispatches admin writes on /gallery/{id}.
func (h *Handler) handleGalleryItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/gallery/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "gallery item not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.gateway.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.updateGalleryItem(w, r, id)
		})).ServeHTTP(w, r)
	case http.MethodDelete:
		h.gateway.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.deleteGalleryItem(w, r, id)
		})).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) updateGalleryItem(w http.ResponseWriter, r *http.Request, id string) {
	var req galleryUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Title == nil && req.File == nil && req.Kind == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	in := UpdateGalleryItemInput{ID: id, Title: req.Title, File: req.File}
	if req.Kind != nil {
		k := NormalizeKind(*req.Kind)
		in.Kind = &k
	}

	g, err := h.store.UpdateGalleryItem(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "gallery item not found")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.gallery.update.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusOK, "updated", toGalleryPayload(g))
}

func (h *Handler) deleteGalleryItem(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.DeleteGalleryItem(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "gallery item not found")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.gallery.delete.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusOK, "deleted", nil)
}

func (h *Handler) listGallery(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListGallery(r.Context(), r.URL.Query().Get("destination_id"))
	if err != nil {
		h.log.Error("content.gallery.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]galleryPayload, 0, len(list))
	for _, g := range list {
		out = append(out, toGalleryPayload(g))
	}
	writeData(w, http.StatusOK, "ok", out)
}

func (h *Handler) addGalleryItem(w http.ResponseWriter, r *http.Request) {
	var req galleryRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.DestinationID) == "" || strings.TrimSpace(req.File) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "destination_id and file are required")
		return
	}

	g, err := h.store.AddGalleryItem(r.Context(), AddGalleryItemInput{
		DestinationID: req.DestinationID,
		Title:         req.Title,
		File:          req.File,
		Kind:          NormalizeKind(req.Kind),
		Now:           time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "destination not found")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("content.gallery.add.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	writeData(w, http.StatusCreated, "created", toGalleryPayload(g))
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitContact(w, r)
	case http.MethodGet:
		h.gateway.RequireAuth(http.HandlerFunc(h.listContact)).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and message are required")
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid email address")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if ip != nil && h.cfg.ContactIPMax > 0 {
		n, err := h.store.CountContactSince(ctx, ip, now.Add(-h.cfg.ContactIPWindow))
		if err != nil {
			h.log.Error("content.contact.throttle.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		if n >= h.cfg.ContactIPMax {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(h.cfg.ContactIPWindow.Seconds()), 10))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many messages, please retry later")
			return
		}
	}

	m, err := h.store.CreateContactMessage(ctx, CreateContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
		IP:      ip,
		Now:     now,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
			return
		}
		h.log.Error("content.contact.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeData(w, http.StatusCreated, "message received", toContactPayload(m))
}

func (h *Handler) listContact(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListContactMessages(r.Context())
	if err != nil {
		h.log.Error("content.contact.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]contactPayload, 0, len(list))
	for _, m := range list {
		out = append(out, toContactPayload(m))
	}
	writeData(w, http.StatusOK, "ok", out)
}

// ---- env helpers ----

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
