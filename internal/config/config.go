package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (optional, shared guard state + preview cache)
	RedisURL string

	// Admin
	AdminToken              string
	LegacyAdminFingerprints string

	// Submitter fingerprints
	FingerprintSalt string

	// Classifier
	ClassifierCacheTTL   time.Duration
	ClassifierStaticPath string

	// Link previews
	PreviewTimeout     time.Duration
	PreviewMaxBytes    int64
	PreviewSkipDomains string
	PreviewCacheTTL    time.Duration
	PreviewRate        float64

	// Moderation sweep
	ScanInterval  time.Duration
	ScanBatchSize int
	ScanOnSubmit  bool

	// Server
	Port        string
	CORSOrigins string
	SentryDSN   string
	AppEnv      string

	// Board registry
	BoardsConfigPath string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "anonboard"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", ""),

		AdminToken:              getEnv("ADMIN_TOKEN", ""),
		LegacyAdminFingerprints: getEnv("LEGACY_ADMIN_FINGERPRINTS", ""),

		FingerprintSalt: getEnv("FINGERPRINT_SALT", ""),

		ClassifierCacheTTL:   parseDuration(getEnv("CLASSIFIER_CACHE_TTL", "60s"), time.Minute),
		ClassifierStaticPath: getEnv("CLASSIFIER_STATIC_PATH", ""),

		PreviewTimeout:     parseDuration(getEnv("PREVIEW_TIMEOUT", "5s"), 5*time.Second),
		PreviewMaxBytes:    parseInt64(getEnv("PREVIEW_MAX_BYTES", "524288"), 512*1024),
		PreviewSkipDomains: getEnv("PREVIEW_SKIP_DOMAINS", "facebook.com,instagram.com,x.com,twitter.com,linkedin.com,tiktok.com,threads.net"),
		PreviewCacheTTL:    parseDuration(getEnv("PREVIEW_CACHE_TTL", "10m"), 10*time.Minute),
		PreviewRate:        parseFloat(getEnv("PREVIEW_RATE", "10"), 10),

		ScanInterval:  parseDuration(getEnv("SCAN_INTERVAL", "2m"), 2*time.Minute),
		ScanBatchSize: int(parseInt64(getEnv("SCAN_BATCH_SIZE", "100"), 100)),
		ScanOnSubmit:  parseBool(getEnv("SCAN_ON_SUBMIT", "true")),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		AppEnv:      getEnv("APP_ENV", "development"),

		BoardsConfigPath: getEnv("BOARDS_CONFIG_PATH", "boards.json"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// SkipDomains returns the preview skip-list as a slice.
func (c *Config) SkipDomains() []string {
	return ParseCSV(c.PreviewSkipDomains)
}

// LegacyFingerprints returns the deprecated admin fingerprint allowlist.
func (c *Config) LegacyFingerprints() []string {
	return ParseCSV(c.LegacyAdminFingerprints)
}

func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt64(s string, fallback int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
