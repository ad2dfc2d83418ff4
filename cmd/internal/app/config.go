package app

import "time"

// Config contains the runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects the directory backend by scheme:
	// empty is in-memory, postgres:// is pgx, mongodb:// or mongodb+srv:// is Mongo.
	DatabaseURL string
	DBName      string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	// StoreTimeout bounds each directory call.
	StoreTimeout time.Duration

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool

	// If true, VIDTUBE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes).
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VIDTUBE_HTTP_ADDR", "0.0.0.0:8000"),
		LogLevel:  EnvString("VIDTUBE_LOG_LEVEL", "info"),
		LogFormat: EnvString("VIDTUBE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VIDTUBE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VIDTUBE_HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      EnvDuration("VIDTUBE_HTTP_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       EnvDuration("VIDTUBE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("VIDTUBE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("VIDTUBE_DATABASE_URL", ""),
		DBName:      EnvString("VIDTUBE_DB_NAME", "vidtube"),
		DBMaxConns:  EnvInt32("VIDTUBE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("VIDTUBE_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("VIDTUBE_DB_MIGRATE", true),

		StoreTimeout: EnvDuration("VIDTUBE_STORE_TIMEOUT", 5*time.Second),

		ReadinessRequireDB: EnvBool("VIDTUBE_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("VIDTUBE_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvList("VIDTUBE_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("VIDTUBE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("VIDTUBE_CORS_MAX_AGE_SECONDS", 600),
	}
}
