package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the session store (default "wisata").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "wisata"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) sessions() string { return pgIdent(s.schema, "sessions") }
func (s *PostgresStore) devices() string  { return pgIdent(s.schema, "devices") }
func (s *PostgresStore) users() string    { return pgIdent(s.schema, "users") }

// Replace removes any existing session for (row.UserID, row.DeviceID) and
// inserts row inside one transaction, enforcing at most one session per pair.
func (s *PostgresStore) Replace(ctx context.Context, row Row) error {
	sessions := s.sessions()

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM `+sessions+`
			WHERE user_id = $1 AND device_id = $2
		`, row.UserID, row.DeviceID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO `+sessions+` (
				id, user_id, device_id,
				access_token_hash, refresh_token_hash,
				created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, row.ID, row.UserID, row.DeviceID,
			row.AccessTokenHash, row.RefreshTokenHash,
			row.CreatedAt, row.ExpiresAt)
		return err
	})
}

// GetByAccessHash loads a session by access token hash, joined with the
// user and device active flags.
func (s *PostgresStore) GetByAccessHash(ctx context.Context, accessHash string) (AuthRow, error) {
	var row AuthRow

	err := s.pool.QueryRow(ctx, `
		SELECT
			s.id, s.user_id, s.device_id,
			s.access_token_hash, s.refresh_token_hash,
			s.created_at, s.expires_at,
			u.is_active, d.is_active
		FROM `+s.sessions()+` s
		JOIN `+s.users()+` u ON u.id = s.user_id
		JOIN `+s.devices()+` d ON d.id = s.device_id
		WHERE s.access_token_hash = $1
	`, accessHash).Scan(
		&row.ID,
		&row.UserID,
		&row.DeviceID,
		&row.AccessTokenHash,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.ExpiresAt,
		&row.UserActive,
		&row.DeviceActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthRow{}, ErrSessionNotFound
	}
	if err != nil {
		return AuthRow{}, err
	}

	return row, nil
}

// GetByRefreshHash loads a session by refresh token hash.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, user_id, device_id,
			access_token_hash, refresh_token_hash,
			created_at, expires_at
		FROM `+s.sessions()+`
		WHERE refresh_token_hash = $1
	`, refreshHash).Scan(
		&row.ID,
		&row.UserID,
		&row.DeviceID,
		&row.AccessTokenHash,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}

	return row, nil
}

// Rotate replaces both token hashes and the expiry in place.
// The row is locked by refresh hash first so concurrent rotations serialize;
// exactly one caller observes ok=true.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, sessionID, oldRefreshHash, newAccessHash, newRefreshHash string, expiresAt time.Time) (bool, error) {
	sessions := s.sessions()

	var rotated bool
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			SELECT id
			FROM `+sessions+`
			WHERE id = $1 AND refresh_token_hash = $2
			FOR UPDATE
		`, sessionID, oldRefreshHash).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// Gone or already rotated by a concurrent request.
			return nil
		}
		if err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE `+sessions+`
			SET access_token_hash = $2,
			    refresh_token_hash = $3,
			    expires_at = $4
			WHERE id = $1
		`, id, newAccessHash, newRefreshHash, expiresAt)
		if err != nil {
			return err
		}
		rotated = ct.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

// Delete removes a single session row (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.sessions()+`
		WHERE id = $1
	`, sessionID)
	return err
}

// DeleteAndDeactivateDevice removes the session row and deactivates its
// device in one transaction.
func (s *PostgresStore) DeleteAndDeactivateDevice(ctx context.Context, sessionID, deviceID string) error {
	sessions := s.sessions()
	devices := s.devices()

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM `+sessions+`
			WHERE id = $1
		`, sessionID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE `+devices+`
			SET is_active = FALSE
			WHERE id = $1
		`, deviceID)
		return err
	})
}

// DeleteAllForUser removes all session rows for a user.
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.sessions()+`
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// DeleteExpiredBefore removes all session rows with expires_at <= now.
func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.sessions()+`
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
