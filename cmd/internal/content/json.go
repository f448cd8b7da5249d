package content

import (
	"net"
	"net/http"

	"wisata/cmd/internal/httpx"
)

// The response envelope and body handling are shared with the auth API
// through httpx so the two surfaces cannot drift apart.
type envelope = httpx.Envelope

func writeData(w http.ResponseWriter, status int, msg string, data any) {
	httpx.WriteData(w, status, msg, data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	httpx.WriteError(w, status, code, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	return httpx.DecodeJSON(w, r, maxBytes, dst)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	return httpx.ClientIP(r, trustProxy)
}
