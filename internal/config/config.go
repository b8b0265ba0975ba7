package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	Env        string
	ListenAddr string

	// Sink selects where assembled records go: "postgres" or "clickhouse".
	Sink        string
	DatabaseURL string

	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string

	// APIToken guards the sync endpoint. If empty, the endpoint is disabled.
	APIToken string

	ReferenceDSN   string
	CacheDir       string
	DimensionsFile string
	TimeZone       string

	GeoTimeout time.Duration
	GeoRate    float64

	TongjiAPIKey    string
	TongjiSecretKey string
	TongjiAuthCode  string
	TongjiDebug     bool

	SiteIDs      []string
	PageSize     int
	SyncInterval time.Duration
	RepollLimit  int

	// RawRetentionDays is how long fetched responses are archived.
	RawRetentionDays   int
	CorrectionInterval time.Duration
}

// Load reads configuration from environment variables and applies
// defaults for anything unset or unparsable.
func Load() *Config {
	cfg := &Config{
		Env:                getenv("APP_ENV", "development"),
		ListenAddr:         getenv("APP_LISTEN_ADDR", ":8080"),
		Sink:               getenv("APP_SINK", "postgres"),
		DatabaseURL:        os.Getenv("APP_DATABASE_URL"),
		ClickHouseAddr:     getenv("APP_CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:       getenv("APP_CLICKHOUSE_DB", "tongji"),
		ClickHouseUser:     getenv("APP_CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("APP_CLICKHOUSE_PASSWORD"),
		APIToken:           os.Getenv("APP_API_TOKEN"),
		ReferenceDSN:       getenv("APP_REFERENCE_DSN", "file:data/data.db?mode=ro"),
		CacheDir:           os.Getenv("APP_CACHE_DIR"),
		DimensionsFile:     getenv("APP_DIMENSIONS_FILE", "dimensions.yaml"),
		TimeZone:           getenv("APP_TIME_ZONE", "UTC"),
		GeoTimeout:         getduration("APP_GEO_TIMEOUT", 5*time.Second),
		GeoRate:            5,
		TongjiAPIKey:       os.Getenv("APP_TONGJI_API_KEY"),
		TongjiSecretKey:    os.Getenv("APP_TONGJI_SECRET_KEY"),
		TongjiAuthCode:     os.Getenv("APP_TONGJI_AUTH_CODE"),
		TongjiDebug:        getbool("APP_TONGJI_DEBUG", false),
		SiteIDs:            getlist("APP_SITE_IDS"),
		PageSize:           getint("APP_PAGE_SIZE", 100),
		SyncInterval:       getduration("APP_SYNC_INTERVAL", 0),
		RepollLimit:        getint("APP_REPOLL_LIMIT", 10),
		RawRetentionDays:   getint("APP_RAW_RETENTION_DAYS", 7),
		CorrectionInterval: getduration("APP_CORRECTION_INTERVAL", 24*time.Hour),
	}

	if v := os.Getenv("APP_GEO_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			cfg.GeoRate = r
		}
	}

	return cfg
}

// Location loads the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	return def
}

func getlist(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
