package content

import (
	"strings"
	"time"
)

// Destination is a tourism spot visitors can browse.
type Destination struct {
	ID          string
	Name        string
	Slug        string
	Description string

	// Image is a reference (path/URL) to an externally stored picture.
	Image *string

	Address   string
	Latitude  *float64
	Longitude *float64

	CreatedAt time.Time
}

// GalleryKind distinguishes gallery media.
type GalleryKind string

const (
	KindPhoto GalleryKind = "photo"
	KindVideo GalleryKind = "video"
)

// NormalizeKind maps raw input onto the known media kinds; photo is the
// default.
func NormalizeKind(s string) GalleryKind {
	switch GalleryKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo
	default:
		return KindPhoto
	}
}

// GalleryItem is one media entry attached to a destination.
type GalleryItem struct {
	ID            string
	DestinationID string
	Title         string

	// File is a reference to the stored media, not the bytes.
	File string

	Kind      GalleryKind
	CreatedAt time.Time
}

// ContactMessage is a visitor inquiry submitted through the public form.
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// Slugify derives a URL slug from a destination name: lowercase ASCII
// letters and digits, runs of anything else collapse to single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
