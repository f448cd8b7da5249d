package client

import (
	"strings"

	"github.com/google/uuid"
)

// NewDeviceIdentifier generates a stable per-install device identifier of the
// form "<type>-<uuid>". Callers persist it (keychain, local storage) and send
// it with every login so the server can recognize the device across sessions.
func NewDeviceIdentifier(deviceType string) string {
	t := strings.ToLower(strings.TrimSpace(deviceType))
	if t == "" {
		t = "unknown"
	}
	return t + "-" + uuid.NewString()
}
