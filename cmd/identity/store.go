package identity

import (
	"context"
	"time"
)

// Role values for User.Role. Admins manage site content; everyone else is
// a regular visitor account.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is Wisata's canonical security principal.
type User struct {
	ID        string
	Name      string
	Email     string
	EmailNorm string

	// ProfilePicture is a reference (path/URL) to an externally stored image.
	ProfilePicture *string

	Role      string
	Active    bool
	CreatedAt time.Time
}

// IsAdmin reports whether the user may manage site content.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// UserAuth is the credential view of a user, used only during login.
// IMPORTANT: PasswordHash must never leave the auth layer.
type UserAuth struct {
	User
	PasswordHash string
}

// CreateUserInput describes a user registration request.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Now      time.Time
}

// UpdateProfileInput describes a profile update; nil fields stay unchanged.
// A new password is re-hashed, an email change re-normalizes and may
// conflict with another account.
type UpdateProfileInput struct {
	ID       string
	Name     *string
	Email    *string
	Password *string
}

// Store is the identity persistence boundary.
// Session persistence lives in cmd/internal/auth/session; this store only
// owns user rows and credentials.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetAuthByEmail returns the credential view for login.
	// Returns ErrNotFound for unknown emails; the caller is responsible for
	// collapsing that into an indistinguishable "invalid credentials" reply.
	GetAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	GetUserByID(ctx context.Context, id string) (User, error)

	// UpdateProfile applies the non-nil fields of in to the user's profile.
	// Returns ErrNotFound for unknown ids and ErrConflict when the new email
	// is already registered.
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error)

	// SetActive flips the account's active flag (idempotent).
	SetActive(ctx context.Context, id string, active bool) error
}
