package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Cookie transport. Both session cookies are httpOnly + SameSite=Strict;
	// Secure should be on everywhere except local development.
	CookieSecure bool
	CookieDomain string
	CookiePath   string

	// Schema is the Postgres schema holding audit_log.
	Schema string

	// Login/register throttling, counted from recent audit_log rows.
	LoginIPMax       int
	LoginIPWindow    time.Duration
	RegisterIPMax    int
	RegisterIPWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:       envBool("WISATA_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:     envInt64("WISATA_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CookieSecure:     envBool("WISATA_AUTH_COOKIE_SECURE", true),
		CookieDomain:     strings.TrimSpace(os.Getenv("WISATA_AUTH_COOKIE_DOMAIN")),
		CookiePath:       envString("WISATA_AUTH_COOKIE_PATH", "/"),
		Schema:           envString("WISATA_DB_SCHEMA", "wisata"),
		LoginIPMax:       envInt("WISATA_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:    envDuration("WISATA_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		RegisterIPMax:    envInt("WISATA_AUTH_REGISTER_IP_MAX", 10),
		RegisterIPWindow: envDuration("WISATA_AUTH_REGISTER_IP_WINDOW", 15*time.Minute),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.Schema == "" {
		cfg.Schema = "wisata"
	}

	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
