package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wisata/cmd/identity"
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

// WithSchema sets the Postgres schema used by the device store (default "wisata").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("device: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed device store.
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
		return nil, fmt.Errorf("device: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) devices() string  { return pgIdent(s.schema, "devices") }
func (s *PostgresStore) sessions() string { return pgIdent(s.schema, "sessions") }

const deviceColumns = `id, user_id, name, identifier, type, is_active, last_active, created_at`

// Upsert registers the device for (UserID, Identifier).
//
// The ownership check and the write happen inside one transaction with the
// existing row locked, so two racing logins with the same identifier
// serialize and the cross-user conflict is raised before any write.
func (s *PostgresStore) Upsert(ctx context.Context, in UpsertInput) (Device, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Identifier) == "" {
		return Device{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	devices := s.devices()

	var out Device
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			existingID    string
			existingOwner string
		)
		err := tx.QueryRow(ctx, `
			SELECT id, user_id
			FROM `+devices+`
			WHERE identifier = $1
			FOR UPDATE
		`, in.Identifier).Scan(&existingID, &existingOwner)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			id, err := identity.NewULID(now)
			if err != nil {
				return err
			}
			return tx.QueryRow(ctx, `
				INSERT INTO `+devices+` (
					id, user_id, name, identifier, type, is_active, last_active, created_at
				) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
				RETURNING `+deviceColumns+`
			`, id, in.UserID, in.Name, in.Identifier, string(in.Type), now).Scan(
				&out.ID, &out.UserID, &out.Name, &out.Identifier,
				&out.Type, &out.Active, &out.LastActive, &out.CreatedAt,
			)

		case err != nil:
			return err

		case existingOwner != in.UserID:
			return ErrIdentifierOwned

		default:
			// Known device of this user: reactivate and refresh.
			return tx.QueryRow(ctx, `
				UPDATE `+devices+`
				SET name = $2,
				    type = $3,
				    is_active = TRUE,
				    last_active = $4
				WHERE id = $1
				RETURNING `+deviceColumns+`
			`, existingID, in.Name, string(in.Type), now).Scan(
				&out.ID, &out.UserID, &out.Name, &out.Identifier,
				&out.Type, &out.Active, &out.LastActive, &out.CreatedAt,
			)
		}
	})
	if err != nil {
		return Device{}, err
	}
	return out, nil
}

// GetByID loads a device by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Device, error) {
	var out Device
	err := s.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM `+s.devices()+`
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.UserID, &out.Name, &out.Identifier,
		&out.Type, &out.Active, &out.LastActive, &out.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return out, nil
}

// ListActive returns the user's active devices, newest first.
func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM `+s.devices()+`
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Device, 0, 8)
	for rows.Next() {
		var d Device
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Name, &d.Identifier,
			&d.Type, &d.Active, &d.LastActive, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Revoke deactivates the device and destroys its session in one transaction.
func (s *PostgresStore) Revoke(ctx context.Context, userID, deviceID string) error {
	devices := s.devices()
	sessions := s.sessions()

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE `+devices+`
			SET is_active = FALSE
			WHERE id = $1 AND user_id = $2
		`, deviceID, userID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM `+sessions+`
			WHERE device_id = $1
		`, deviceID)
		return err
	})
}

// Delete removes the device and its session in one transaction.
func (s *PostgresStore) Delete(ctx context.Context, userID, deviceID string) error {
	devices := s.devices()
	sessions := s.sessions()

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM `+sessions+`
			WHERE device_id = $1
		`, deviceID); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `
			DELETE FROM `+devices+`
			WHERE id = $1 AND user_id = $2
		`, deviceID, userID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Touch updates last_active for a device.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, deviceID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.devices()+`
		SET last_active = $2
		WHERE id = $1
	`, deviceID, now)
	return err
}

// withTx runs fn inside a transaction: begin, fn, commit.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
