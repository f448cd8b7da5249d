package content

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"wisata/cmd/identity"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
type InMemoryStore struct {
	mu           sync.Mutex
	destinations map[string]Destination // id -> destination
	gallery      map[string]GalleryItem // id -> item
	contacts     []ContactMessage
	contactIPs   []contactStamp
}

type contactStamp struct {
	ip string
	at time.Time
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		destinations: make(map[string]Destination),
		gallery:      make(map[string]GalleryItem),
	}
}

func (s *InMemoryStore) CreateDestination(ctx context.Context, in CreateDestinationInput) (Destination, error) {
	if err := ctx.Err(); err != nil {
		return Destination{}, err
	}

	name := in.Name
	slug := Slugify(name)
	if slug == "" {
		return Destination{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.destinations {
		if d.Slug == slug {
			return Destination{}, ErrSlugTaken
		}
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Destination{}, err
	}
	d := Destination{
		ID:          id,
		Name:        name,
		Slug:        slug,
		Description: in.Description,
		Image:       in.Image,
		Address:     in.Address,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CreatedAt:   now,
	}
	s.destinations[id] = d
	return d, nil
}

func (s *InMemoryStore) ListDestinations(ctx context.Context) ([]Destination, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Destination, 0, len(s.destinations))
	for _, d := range s.destinations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) GetDestinationBySlug(ctx context.Context, slug string) (Destination, error) {
	if err := ctx.Err(); err != nil {
		return Destination{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.destinations {
		if d.Slug == slug {
			return d, nil
		}
	}
	return Destination{}, ErrNotFound
}

func (s *InMemoryStore) UpdateDestination(ctx context.Context, in UpdateDestinationInput) (Destination, error) {
	if err := ctx.Err(); err != nil {
		return Destination{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.destinations[in.ID]
	if !ok {
		return Destination{}, ErrNotFound
	}

	if in.Name != nil {
		slug := Slugify(*in.Name)
		if slug == "" {
			return Destination{}, ErrInvalidInput
		}
		for id, other := range s.destinations {
			if id != d.ID && other.Slug == slug {
				return Destination{}, ErrSlugTaken
			}
		}
		d.Name = *in.Name
		d.Slug = slug
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.Image != nil {
		d.Image = in.Image
	}
	if in.Address != nil {
		d.Address = *in.Address
	}
	if in.Latitude != nil {
		d.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		d.Longitude = in.Longitude
	}

	s.destinations[d.ID] = d
	return d, nil
}

func (s *InMemoryStore) DeleteDestination(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.destinations[id]; !ok {
		return ErrNotFound
	}
	delete(s.destinations, id)

	// The gallery goes with its destination.
	for gid, g := range s.gallery {
		if g.DestinationID == id {
			delete(s.gallery, gid)
		}
	}
	return nil
}

func (s *InMemoryStore) AddGalleryItem(ctx context.Context, in AddGalleryItemInput) (GalleryItem, error) {
	if err := ctx.Err(); err != nil {
		return GalleryItem{}, err
	}
	if in.DestinationID == "" || in.File == "" {
		return GalleryItem{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.destinations[in.DestinationID]; !ok {
		return GalleryItem{}, ErrNotFound
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return GalleryItem{}, err
	}
	g := GalleryItem{
		ID:            id,
		DestinationID: in.DestinationID,
		Title:         in.Title,
		File:          in.File,
		Kind:          in.Kind,
		CreatedAt:     now,
	}
	s.gallery[id] = g
	return g, nil
}

func (s *InMemoryStore) ListGallery(ctx context.Context, destinationID string) ([]GalleryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]GalleryItem, 0, len(s.gallery))
	for _, g := range s.gallery {
		if destinationID == "" || g.DestinationID == destinationID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateGalleryItem(ctx context.Context, in UpdateGalleryItemInput) (GalleryItem, error) {
	if err := ctx.Err(); err != nil {
		return GalleryItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gallery[in.ID]
	if !ok {
		return GalleryItem{}, ErrNotFound
	}

	if in.Title != nil {
		g.Title = *in.Title
	}
	if in.File != nil {
		if *in.File == "" {
			return GalleryItem{}, ErrInvalidInput
		}
		g.File = *in.File
	}
	if in.Kind != nil {
		g.Kind = *in.Kind
	}

	s.gallery[g.ID] = g
	return g, nil
}

func (s *InMemoryStore) DeleteGalleryItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gallery[id]; !ok {
		return ErrNotFound
	}
	delete(s.gallery, id)
	return nil
}

func (s *InMemoryStore) CreateContactMessage(ctx context.Context, in CreateContactInput) (ContactMessage, error) {
	if err := ctx.Err(); err != nil {
		return ContactMessage{}, err
	}
	if in.Name == "" || in.Email == "" || in.Message == "" {
		return ContactMessage{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := identity.NewULID(now)
	if err != nil {
		return ContactMessage{}, err
	}
	m := ContactMessage{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Message:   in.Message,
		CreatedAt: now,
	}
	s.contacts = append(s.contacts, m)
	if in.IP != nil {
		s.contactIPs = append(s.contactIPs, contactStamp{ip: in.IP.String(), at: now})
	}
	return m, nil
}

func (s *InMemoryStore) ListContactMessages(ctx context.Context) ([]ContactMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ContactMessage, len(s.contacts))
	copy(out, s.contacts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountContactSince(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ip == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.contactIPs {
		if st.ip == ip.String() && !st.at.Before(since) {
			n++
		}
	}
	return n, nil
}
