package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, WISATA_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and token
	// hashing must be HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// SessionSweepInterval controls how often expired session rows are
	// removed. Zero disables the sweeper.
	SessionSweepInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WISATA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WISATA_LOG_LEVEL", "info"),
		LogFormat: EnvString("WISATA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("WISATA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WISATA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WISATA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WISATA_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WISATA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WISATA_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WISATA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WISATA_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("WISATA_DB_SCHEMA", "wisata"),

		ReadinessRequireDB: EnvBool("WISATA_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("WISATA_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvStringSlice("WISATA_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("WISATA_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("WISATA_CORS_MAX_AGE_SECONDS", 600),

		SessionSweepInterval: EnvDuration("WISATA_SESSION_SWEEP_INTERVAL", 15*time.Minute),
	}
}
