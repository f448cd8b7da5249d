// Package app wires the Wisata server runtime: config, logging, storage
// mode, HTTP routes, and the auth stack.
//
// It is intentionally small and deterministic to keep CI gates strict and
// behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"wisata/cmd/identity"
	authapi "wisata/cmd/internal/auth/api"
	"wisata/cmd/internal/auth/session"
	"wisata/cmd/internal/content"
	"wisata/cmd/internal/device"

	"aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// App is the Wisata server runtime: it owns HTTP wiring and the lifecycle
// of the stores behind it.
type App struct {
	cfg Config
	log Logger

	store     Store
	dbPool    *pgxpool.Pool
	dbEnabled bool

	sessions *session.Service
	auth     *authapi.Handler
	content  *content.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	deps, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessCfg, err := loadSessionConfig(cfg, log)
	if err != nil {
		deps.close()
		return nil, err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		deps.close()
		return nil, err
	}
	sessions := session.NewService(sessCfg, deps.sessionStore, tokens)

	registry := device.NewRegistry(deps.deviceStore, device.WithLogger(log))

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), deps.userStore, sessions, registry, deps.pool)
	if err != nil {
		deps.close()
		return nil, err
	}

	contentHandler, err := content.NewHandler(log, content.LoadConfigFromEnv(), deps.contentStore, authHandler)
	if err != nil {
		deps.close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     deps.lifecycle,
		dbPool:    deps.pool,
		dbEnabled: deps.pool != nil,
		sessions:  sessions,
		auth:      authHandler,
		content:   contentHandler,
	}, nil
}

// Handler builds the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.content)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	h = WithMetrics(h)
	h = WithRequestLogging(h, a.log)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweepSessions(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// sweepSessions periodically removes expired session rows so dead sessions
// do not accumulate between logins.
func (a *App) sweepSessions(ctx context.Context) {
	if a.cfg.SessionSweepInterval <= 0 {
		return
	}

	t := time.NewTicker(a.cfg.SessionSweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.sessions.SweepExpired(ctx, time.Now().UTC())
			if err != nil {
				a.log.Warn("session.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("session.sweep", "removed", n)
			}
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// storeDeps bundles the concrete stores behind the service layer plus their
// shared lifecycle handle.
type storeDeps struct {
	lifecycle Store
	pool      *pgxpool.Pool

	userStore    identity.Store
	sessionStore session.Store
	deviceStore  device.Store
	contentStore content.Store
}

func (d storeDeps) close() {
	if d.lifecycle != nil {
		_ = d.lifecycle.Close(context.Background())
	}
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores.
//
// Ownership model: app owns the pool lifecycle; the per-package Postgres
// stores borrow it.
func newStores(ctx context.Context, cfg Config, log Logger) (storeDeps, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		// The Postgres stores handle session<->device coupling inside their
		// own transactions; in-memory mode bridges the two stores with hooks
		// in both directions instead. devStore is assigned below, before any
		// request can reach the session store.
		var devStore *device.InMemoryStore
		sessStore := session.NewInMemoryStore(session.WithDeviceBridge(
			func(deviceID string) { devStore.Deactivate(deviceID) },
			func(deviceID string) bool { return devStore.Active(deviceID) },
		))
		devStore = device.NewInMemoryStore(device.WithSessionDestroyer(func(deviceID string) {
			sessStore.DeleteForDevice(deviceID)
		}))

		return storeDeps{
			lifecycle:    nopStore{},
			userStore:    identity.NewInMemoryStore(),
			sessionStore: sessStore,
			deviceStore:  devStore,
			contentStore: content.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return storeDeps{}, err
	}
	log.Info("db.enabled.postgres_store")

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeDeps{}, err
	}
	sessStore, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeDeps{}, err
	}
	devStore, err := device.NewPostgresStore(pool, device.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeDeps{}, err
	}
	contentStore, err := content.NewPostgresStore(pool, content.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeDeps{}, err
	}

	return storeDeps{
		lifecycle:    dbStore{pool: pool},
		pool:         pool,
		userStore:    users,
		sessionStore: sessStore,
		deviceStore:  devStore,
		contentStore: contentStore,
	}, nil
}

// loadSessionConfig reads the session/token configuration. Without a
// database an ephemeral signing key is acceptable for local runs, so one is
// generated when the env leaves it unset.
func loadSessionConfig(cfg Config, log Logger) (session.Config, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err == nil {
		return sessCfg, nil
	}

	if cfg.DatabaseURL == "" && os.Getenv("WISATA_PASETO_V4_SECRET_KEY_HEX") == "" {
		log.Warn("auth.ephemeral_signing_key", "note", "WISATA_PASETO_V4_SECRET_KEY_HEX not set; tokens will not survive restarts")
		devCfg := session.DefaultConfig()
		devCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
		return devCfg, nil
	}

	return session.Config{}, err
}
