package content

import (
	"context"
	"net"
	"time"
)

// CreateDestinationInput describes a new destination.
type CreateDestinationInput struct {
	Name        string
	Description string
	Image       *string
	Address     string
	Latitude    *float64
	Longitude   *float64
	Now         time.Time
}

// AddGalleryItemInput describes a new gallery entry.
type AddGalleryItemInput struct {
	DestinationID string
	Title         string
	File          string
	Kind          GalleryKind
	Now           time.Time
}

// UpdateDestinationInput patches a destination; nil fields stay unchanged.
// A name change re-derives the slug.
type UpdateDestinationInput struct {
	ID          string
	Name        *string
	Description *string
	Image       *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
}

// UpdateGalleryItemInput patches a gallery entry; nil fields stay unchanged.
type UpdateGalleryItemInput struct {
	ID    string
	Title *string
	File  *string
	Kind  *GalleryKind
}

// CreateContactInput describes a visitor inquiry. IP is recorded for
// submission throttling and may be nil.
type CreateContactInput struct {
	Name    string
	Email   string
	Message string
	IP      net.IP
	Now     time.Time
}

// Store is the content persistence boundary.
type Store interface {
	// CreateDestination inserts a destination; its slug is derived from the
	// name. Returns ErrSlugTaken when the slug already exists.
	CreateDestination(ctx context.Context, in CreateDestinationInput) (Destination, error)

	// ListDestinations returns all destinations, newest first.
	ListDestinations(ctx context.Context) ([]Destination, error)

	// GetDestinationBySlug returns ErrNotFound when absent.
	GetDestinationBySlug(ctx context.Context, slug string) (Destination, error)

	// UpdateDestination applies the non-nil fields of in. Returns ErrNotFound
	// for unknown ids and ErrSlugTaken when the renamed slug collides.
	UpdateDestination(ctx context.Context, in UpdateDestinationInput) (Destination, error)

	// DeleteDestination removes a destination and its gallery. Returns
	// ErrNotFound for unknown ids.
	DeleteDestination(ctx context.Context, id string) error

	// AddGalleryItem attaches media to a destination. Returns ErrNotFound
	// when the destination does not exist.
	AddGalleryItem(ctx context.Context, in AddGalleryItemInput) (GalleryItem, error)

	// ListGallery returns a destination's gallery, newest first. An empty
	// destinationID lists everything.
	ListGallery(ctx context.Context, destinationID string) ([]GalleryItem, error)

	// UpdateGalleryItem applies the non-nil fields of in. Returns ErrNotFound
	// for unknown ids.
	UpdateGalleryItem(ctx context.Context, in UpdateGalleryItemInput) (GalleryItem, error)

	// DeleteGalleryItem removes one gallery entry. Returns ErrNotFound for
	// unknown ids.
	DeleteGalleryItem(ctx context.Context, id string) error

	// CreateContactMessage stores a visitor inquiry.
	CreateContactMessage(ctx context.Context, in CreateContactInput) (ContactMessage, error)

	// ListContactMessages returns inquiries, newest first.
	ListContactMessages(ctx context.Context) ([]ContactMessage, error)

	// CountContactSince counts inquiries from one IP after the cutoff, for
	// submission throttling.
	CountContactSince(ctx context.Context, ip net.IP, since time.Time) (int, error)
}
