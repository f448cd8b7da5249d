package authapi

import (
	"time"

	"wisata/cmd/identity"
	"wisata/cmd/internal/device"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	DeviceName       string `json:"device_name"`
	DeviceIdentifier string `json:"device_identifier"`
	DeviceType       string `json:"device_type"`
}

type deviceActionRequest struct {
	DeviceID string `json:"device_id"`
}

// editProfileRequest patches the caller's own account. Empty fields are left
// unchanged; current_password is always required.
type editProfileRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userPayload struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ProfilePicture *string   `json:"profile_picture"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

type devicePayload struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Identifier string     `json:"identifier"`
	Type       string     `json:"type"`
	Active     bool       `json:"active"`
	LastActive *time.Time `json:"last_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

type loginData struct {
	User      userPayload   `json:"user"`
	Device    devicePayload `json:"device"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type verifyData struct {
	Authenticated bool `json:"authenticated"`
}

type meData struct {
	User   userPayload   `json:"user"`
	Device devicePayload `json:"device"`
}

type deviceListData struct {
	Devices []devicePayload `json:"devices"`
}

type profileData struct {
	User userPayload `json:"user"`
}

func toUserPayload(u identity.User) userPayload {
	return userPayload{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		Role:           u.Role,
		CreatedAt:      u.CreatedAt,
	}
}

func toDevicePayload(d device.Device) devicePayload {
	return devicePayload{
		ID:         d.ID,
		Name:       d.Name,
		Identifier: d.Identifier,
		Type:       string(d.Type),
		Active:     d.Active,
		LastActive: d.LastActive,
		CreatedAt:  d.CreatedAt,
	}
}

func toDevicePayloads(devices []device.Device) []devicePayload {
	out := make([]devicePayload, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDevicePayload(d))
	}
	return out
}
