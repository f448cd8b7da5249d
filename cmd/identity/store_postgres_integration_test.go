package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require WISATA_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.CreateUser(ctx, CreateUserInput{
		Name:     "First User",
		Email:    "User@Example.com",
		Password: "very-strong-password-1",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same email (case-insensitive) should conflict.
	_, err = s.CreateUser(ctx, CreateUserInput{
		Name:     "Second User",
		Email:    "user@example.COM",
		Password: "very-strong-password-2",
		Now:      time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_GetAuthByEmail_RoundTrip(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	email := "auth-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com"
	created, err := s.CreateUser(ctx, CreateUserInput{
		Name:     "Auth User",
		Email:    email,
		Password: "very-strong-password-3",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Lookup is by normalized email.
	auth, err := s.GetAuthByEmail(ctx, strings.ToUpper(email))
	if err != nil {
		t.Fatalf("get auth: %v", err)
	}
	if auth.ID != created.ID {
		t.Fatalf("expected user id %q, got %q", created.ID, auth.ID)
	}
	if !auth.Active {
		t.Fatalf("expected new user to be active")
	}

	ok, err := VerifyPassword("very-strong-password-3", auth.PasswordHash)
	if err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	// Unknown email maps to ErrNotFound.
	_, err = s.GetAuthByEmail(ctx, "nobody@example.com")
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestPostgresStore_UpdateProfile(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := strings.ToLower(mustNewULIDLike(t))
	first, err := s.CreateUser(ctx, CreateUserInput{
		Name:     "First User",
		Email:    "first-" + suffix + "@example.com",
		Password: "very-strong-password-5",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}
	second, err := s.CreateUser(ctx, CreateUserInput{
		Name:     "Second User",
		Email:    "second-" + suffix + "@example.com",
		Password: "very-strong-password-6",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 2: %v", err)
	}

	// Name, email and password change together.
	newName := "Renamed User"
	newEmail := "renamed-" + suffix + "@example.com"
	newPassword := "very-strong-password-7"
	got, err := s.UpdateProfile(ctx, UpdateProfileInput{
		ID:       second.ID,
		Name:     &newName,
		Email:    &newEmail,
		Password: &newPassword,
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if got.Name != newName || got.Email != newEmail {
		t.Fatalf("unexpected profile after update: %+v", got)
	}

	auth, err := s.GetAuthByEmail(ctx, newEmail)
	if err != nil {
		t.Fatalf("get auth by new email: %v", err)
	}
	if ok, err := VerifyPassword(newPassword, auth.PasswordHash); err != nil || !ok {
		t.Fatalf("new password does not verify: ok=%v err=%v", ok, err)
	}

	// Stealing the first user's email conflicts.
	_, err = s.UpdateProfile(ctx, UpdateProfileInput{ID: second.ID, Email: &first.Email})
	if err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict, got: %v", err)
	}

	// Unknown id maps to ErrNotFound.
	_, err = s.UpdateProfile(ctx, UpdateProfileInput{ID: "01XXXXXXXXXXXXXXXXXXXXXXXX", Name: &newName})
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestPostgresStore_SetActive_FlipsFlag(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	email := "active-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com"
	created, err := s.CreateUser(ctx, CreateUserInput{
		Name:     "Flip User",
		Email:    email,
		Password: "very-strong-password-4",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := s.SetActive(ctx, created.ID, false); err != nil {
		t.Fatalf("set inactive: %v", err)
	}

	got, err := s.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Active {
		t.Fatalf("expected user to be inactive")
	}

	// Idempotent.
	if err := s.SetActive(ctx, created.ID, false); err != nil {
		t.Fatalf("set inactive (second call): %v", err)
	}

	// Unknown id maps to ErrNotFound.
	if err := s.SetActive(ctx, "01XXXXXXXXXXXXXXXXXXXXXXXX", true); err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

// ---- helpers ----

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("WISATA_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: WISATA_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse WISATA_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (WISATA_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "wisata_it_" + strings.ToLower(mustNewULIDLike(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyIdentitySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  profile_picture TEXT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);
`, users)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
