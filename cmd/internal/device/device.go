package device

import (
	"strings"
	"time"
)

// Type classifies the client platform of a device.
type Type string

const (
	TypeDesktop Type = "desktop"
	TypeAndroid Type = "android"
	TypeIOS     Type = "ios"
	TypeWeb     Type = "web"
	TypeUnknown Type = "unknown"
)

// NormalizeType maps arbitrary client input onto the known platform set.
// Empty input keeps the historical default of "android".
func NormalizeType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeDesktop:
		return TypeDesktop
	case TypeAndroid:
		return TypeAndroid
	case TypeIOS:
		return TypeIOS
	case TypeWeb:
		return TypeWeb
	case "":
		return TypeAndroid
	default:
		return TypeUnknown
	}
}

// Device is a registered client device owned by exactly one user.
type Device struct {
	ID         string
	UserID     string
	Name       string
	Identifier string
	Type       Type
	Active     bool
	LastActive *time.Time
	CreatedAt  time.Time
}
