package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL    string
	DatabaseSchema string
	DBMaxConns     int32
	DBMinConns     int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Timezone names the zone whose midnight starts an attendance day.
	Timezone  string
	BulkLimit int

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	WSOriginRequired bool
	WSAllowedOrigins []string
	WSSendQueue      int
	WSHeartbeatEvery time.Duration
	WSRateEvents     int
	WSRateWindow     time.Duration

	// Security policy:
	// If true, CLUBHOUSE_FLASH_KEY MUST be set (>= 32 bytes).
	RequireFlashKey bool

	// DevSeed fills the in-memory member store with demo accounts and logs
	// their access tokens. Ignored when a database is configured.
	DevSeed bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CLUBHOUSE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CLUBHOUSE_LOG_LEVEL", "info"),
		LogFormat: EnvString("CLUBHOUSE_LOG_FORMAT", "json"),
		LogColor:  EnvBool("CLUBHOUSE_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("CLUBHOUSE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CLUBHOUSE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CLUBHOUSE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CLUBHOUSE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CLUBHOUSE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:    EnvString("CLUBHOUSE_DATABASE_URL", ""),
		DatabaseSchema: EnvString("CLUBHOUSE_DATABASE_SCHEMA", "clubhouse"),
		DBMaxConns:     EnvInt32("CLUBHOUSE_DB_MAX_CONNS", 10),
		DBMinConns:     EnvInt32("CLUBHOUSE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("CLUBHOUSE_READINESS_REQUIRE_DB", false),

		Timezone:  EnvString("CLUBHOUSE_TIMEZONE", "Africa/Johannesburg"),
		BulkLimit: EnvInt("CLUBHOUSE_BULK_LIMIT", 500),

		MetricsEnabled: EnvBool("CLUBHOUSE_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("CLUBHOUSE_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("CLUBHOUSE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("CLUBHOUSE_CORS_MAX_AGE_SECONDS", 600),

		WSOriginRequired: EnvBool("CLUBHOUSE_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins: EnvCSV("CLUBHOUSE_WS_ALLOWED_ORIGINS", []string{"http://localhost", "http://127.0.0.1"}),
		WSSendQueue:      EnvInt("CLUBHOUSE_WS_SEND_QUEUE", 64),
		WSHeartbeatEvery: EnvDuration("CLUBHOUSE_WS_HEARTBEAT", 25*time.Second),
		WSRateEvents:     EnvInt("CLUBHOUSE_WS_RATE_EVENTS", 10),
		WSRateWindow:     EnvDuration("CLUBHOUSE_WS_RATE_WINDOW", 10*time.Second),

		RequireFlashKey: EnvBool("CLUBHOUSE_REQUIRE_FLASH_KEY", false),
		DevSeed:         EnvBool("CLUBHOUSE_DEV_SEED", false),
	}
}
