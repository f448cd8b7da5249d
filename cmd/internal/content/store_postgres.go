package content

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// WithSchema sets the Postgres schema used by the content store (default "wisata").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("content: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed content store.
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
		return nil, fmt.Errorf("content: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) destinations() string { return pgIdent(s.schema, "destinations") }
func (s *PostgresStore) gallery() string      { return pgIdent(s.schema, "gallery_items") }
func (s *PostgresStore) contacts() string     { return pgIdent(s.schema, "contact_messages") }

const destinationColumns = `id, name, slug, description, image, address, latitude, longitude, created_at`

// CreateDestination inserts a destination row keyed by the slug of its name.
func (s *PostgresStore) CreateDestination(ctx context.Context, in CreateDestinationInput) (Destination, error) {
	name := strings.TrimSpace(in.Name)
	slug := Slugify(name)
	if name == "" || slug == "" {
		return Destination{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Destination{}, err
	}

	var out Destination
	err = s.pool.QueryRow(ctx, `
		INSERT INTO `+s.destinations()+` (
			id, name, slug, description, image, address, latitude, longitude, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+destinationColumns+`
	`, id, name, slug, strings.TrimSpace(in.Description), in.Image,
		strings.TrimSpace(in.Address), in.Latitude, in.Longitude, now,
	).Scan(
		&out.ID, &out.Name, &out.Slug, &out.Description, &out.Image,
		&out.Address, &out.Latitude, &out.Longitude, &out.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Destination{}, ErrSlugTaken
		}
		return Destination{}, err
	}
	return out, nil
}

// ListDestinations returns all destinations, newest first.
func (s *PostgresStore) ListDestinations(ctx context.Context) ([]Destination, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+destinationColumns+`
		FROM `+s.destinations()+`
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Destination, 0, 16)
	for rows.Next() {
		var d Destination
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Slug, &d.Description, &d.Image,
			&d.Address, &d.Latitude, &d.Longitude, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDestinationBySlug loads one destination.
func (s *PostgresStore) GetDestinationBySlug(ctx context.Context, slug string) (Destination, error) {
	var out Destination
	err := s.pool.QueryRow(ctx, `
		SELECT `+destinationColumns+`
		FROM `+s.destinations()+`
		WHERE slug = $1
	`, strings.TrimSpace(slug)).Scan(
		&out.ID, &out.Name, &out.Slug, &out.Description, &out.Image,
		&out.Address, &out.Latitude, &out.Longitude, &out.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Destination{}, ErrNotFound
	}
	if err != nil {
		return Destination{}, err
	}
	return out, nil
}

// UpdateDestination patches a destination in one statement; nil fields keep
// their stored values. A rename re-derives the slug.
func (s *PostgresStore) UpdateDestination(ctx context.Context, in UpdateDestinationInput) (Destination, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return Destination{}, ErrInvalidInput
	}

	var name, slug *string
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		sl := Slugify(n)
		if n == "" || sl == "" {
			return Destination{}, ErrInvalidInput
		}
		name, slug = &n, &sl
	}

	var out Destination
	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.destinations()+`
		SET name = COALESCE($2, name),
		    slug = COALESCE($3, slug),
		    description = COALESCE($4, description),
		    image = COALESCE($5, image),
		    address = COALESCE($6, address),
		    latitude = COALESCE($7, latitude),
		    longitude = COALESCE($8, longitude)
		WHERE id = $1
		RETURNING `+destinationColumns+`
	`, id, name, slug, in.Description, in.Image, in.Address, in.Latitude, in.Longitude).Scan(
		&out.ID, &out.Name, &out.Slug, &out.Description, &out.Image,
		&out.Address, &out.Latitude, &out.Longitude, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Destination{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Destination{}, ErrSlugTaken
		}
		return Destination{}, err
	}
	return out, nil
}

// DeleteDestination removes a destination and its gallery in one transaction.
func (s *PostgresStore) DeleteDestination(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM `+s.gallery()+` WHERE destination_id = $1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM `+s.destinations()+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// AddGalleryItem attaches media to a destination.
func (s *PostgresStore) AddGalleryItem(ctx context.Context, in AddGalleryItemInput) (GalleryItem, error) {
	destID := strings.TrimSpace(in.DestinationID)
	file := strings.TrimSpace(in.File)
	if destID == "" || file == "" {
		return GalleryItem{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return GalleryItem{}, err
	}

	var out GalleryItem
	err = s.pool.QueryRow(ctx, `
		INSERT INTO `+s.gallery()+` (id, destination_id, title, file, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, destination_id, title, file, kind, created_at
	`, id, destID, strings.TrimSpace(in.Title), file, string(in.Kind), now).Scan(
		&out.ID, &out.DestinationID, &out.Title, &out.File, &out.Kind, &out.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// FK violation: the destination is gone.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return GalleryItem{}, ErrNotFound
		}
		return GalleryItem{}, err
	}
	return out, nil
}

// ListGallery returns gallery items, optionally filtered by destination.
func (s *PostgresStore) ListGallery(ctx context.Context, destinationID string) ([]GalleryItem, error) {
	query := `
		SELECT id, destination_id, title, file, kind, created_at
		FROM ` + s.gallery() + `
	`
	args := []any{}
	if d := strings.TrimSpace(destinationID); d != "" {
		query += ` WHERE destination_id = $1`
		args = append(args, d)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GalleryItem, 0, 16)
	for rows.Next() {
		var g GalleryItem
		if err := rows.Scan(&g.ID, &g.DestinationID, &g.Title, &g.File, &g.Kind, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGalleryItem patches one gallery entry; nil fields keep their stored
// values.
func (s *PostgresStore) UpdateGalleryItem(ctx context.Context, in UpdateGalleryItemInput) (GalleryItem, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return GalleryItem{}, ErrInvalidInput
	}

	var file *string
	if in.File != nil {
		f := strings.TrimSpace(*in.File)
		if f == "" {
			return GalleryItem{}, ErrInvalidInput
		}
		file = &f
	}
	var kind *string
	if in.Kind != nil {
		k := string(*in.Kind)
		kind = &k
	}

	var out GalleryItem
	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.gallery()+`
		SET title = COALESCE($2, title),
		    file = COALESCE($3, file),
		    kind = COALESCE($4, kind)
		WHERE id = $1
		RETURNING id, destination_id, title, file, kind, created_at
	`, id, in.Title, file, kind).Scan(
		&out.ID, &out.DestinationID, &out.Title, &out.File, &out.Kind, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GalleryItem{}, ErrNotFound
		}
		return GalleryItem{}, err
	}
	return out, nil
}

// DeleteGalleryItem removes one gallery entry.
func (s *PostgresStore) DeleteGalleryItem(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}

	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.gallery()+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateContactMessage stores a visitor inquiry.
func (s *PostgresStore) CreateContactMessage(ctx context.Context, in CreateContactInput) (ContactMessage, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	msg := strings.TrimSpace(in.Message)
	if name == "" || email == "" || msg == "" {
		return ContactMessage{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return ContactMessage{}, err
	}

	var ipVal any
	if in.IP != nil {
		ipVal = in.IP.String()
	}

	var out ContactMessage
	err = s.pool.QueryRow(ctx, `
		INSERT INTO `+s.contacts()+` (id, name, email, message, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, email, message, created_at
	`, id, name, email, msg, ipVal, now).Scan(
		&out.ID, &out.Name, &out.Email, &out.Message, &out.CreatedAt,
	)
	if err != nil {
		return ContactMessage{}, err
	}
	return out, nil
}

// ListContactMessages returns inquiries, newest first.
func (s *PostgresStore) ListContactMessages(ctx context.Context) ([]ContactMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, message, created_at
		FROM `+s.contacts()+`
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ContactMessage, 0, 16)
	for rows.Next() {
		var m ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountContactSince counts recent inquiries from one IP.
func (s *PostgresStore) CountContactSince(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if ip == nil {
		return 0, nil
	}
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM `+s.contacts()+`
		WHERE ip = $1 AND created_at >= $2
	`, ip.String(), since).Scan(&n)
	return n, err
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
