package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a map-backed Store for dev mode and tests. It mirrors the
// Postgres store's semantics: normalized-email uniqueness, trimmed input
// validation, and the same typed errors.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]UserAuth
	byEmail map[string]string // email_norm -> id
}

// NewInMemoryStore returns an empty in-memory identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]UserAuth),
		byEmail: make(map[string]string),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if name == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name is required"}
	}
	if email == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	emailNorm := NormalizeEmail(email)

	// Hash outside the lock; argon2id is deliberately slow.
	pwHash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[emailNorm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:        userID,
		Name:      name,
		Email:     email,
		EmailNorm: emailNorm,
		Role:      RoleUser,
		Active:    true,
		CreatedAt: now,
	}
	s.byID[userID] = UserAuth{User: u, PasswordHash: pwHash}
	s.byEmail[emailNorm] = userID

	return u, nil
}

func (s *InMemoryStore) GetAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetAuthByEmail"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return ua.User, nil
}

func (s *InMemoryStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	var name, email, emailNorm, pwHash *string
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		if v == "" {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name cannot be empty"}
		}
		name = &v
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		if v == "" {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email cannot be empty"}
		}
		n := NormalizeEmail(v)
		email, emailNorm = &v, &n
	}
	if in.Password != nil {
		if strings.TrimSpace(*in.Password) == "" {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password cannot be empty"}
		}
		// Hash outside the lock; argon2id is deliberately slow.
		h, err := HashPassword(*in.Password, DefaultArgon2idParams())
		if err != nil {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
		}
		pwHash = &h
	}
	if name == nil && email == nil && pwHash == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nothing to update"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[strings.TrimSpace(in.ID)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	if emailNorm != nil {
		if other, exists := s.byEmail[*emailNorm]; exists && other != ua.ID {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, ua.EmailNorm)
		ua.Email = *email
		ua.EmailNorm = *emailNorm
	}
	if name != nil {
		ua.Name = *name
	}
	if pwHash != nil {
		ua.PasswordHash = *pwHash
	}

	s.byID[ua.ID] = ua
	s.byEmail[ua.EmailNorm] = ua.ID

	return ua.User, nil
}

// SetRole flips a user's role (test/dev hook; Postgres deployments manage
// roles directly in the users table).
func (s *InMemoryStore) SetRole(id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ua, ok := s.byID[id]; ok {
		ua.Role = role
		s.byID[id] = ua
	}
}

func (s *InMemoryStore) SetActive(ctx context.Context, id string, active bool) error {
	const op = "identity.SetActive"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	ua.Active = active
	s.byID[id] = ua
	return nil
}
