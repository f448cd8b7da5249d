package authapi

import (
	"context"
	"time"

	"wisata/cmd/identity"
	"wisata/cmd/internal/auth/session"
	"wisata/cmd/internal/device"
)

// UserStore is the slice of identity persistence the auth API needs.
type UserStore interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	GetAuthByEmail(ctx context.Context, email string) (identity.UserAuth, error)
	GetUserByID(ctx context.Context, id string) (identity.User, error)
	UpdateProfile(ctx context.Context, in identity.UpdateProfileInput) (identity.User, error)
}

// SessionService issues, validates, rotates and destroys sessions.
type SessionService interface {
	Login(ctx context.Context, now time.Time, userID, deviceID string) (session.Issued, error)
	VerifyAccess(ctx context.Context, now time.Time, token string) (session.Identity, error)
	Refresh(ctx context.Context, now time.Time, refreshTokenPlain string) (session.Issued, error)
	Logout(ctx context.Context, now time.Time, token string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

// DeviceRegistry manages the device inventory backing sessions.
type DeviceRegistry interface {
	FindOrCreate(ctx context.Context, userID, identifier, name, rawType string, now time.Time) (device.Device, error)
	Get(ctx context.Context, id string) (device.Device, error)
	List(ctx context.Context, userID string) ([]device.Device, error)
	Revoke(ctx context.Context, userID, deviceID string) error
	Delete(ctx context.Context, userID, deviceID string) error
	TouchLastActive(deviceID string)
}

var (
	_ UserStore      = (*identity.PostgresStore)(nil)
	_ SessionService = (*session.Service)(nil)
	_ DeviceRegistry = (*device.Registry)(nil)
)
