package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Access policy values. Strict is the default; the permissive modes
// exist because older session documents were written without an access
// token and some deployments still serve them. Enabling either one is
// a product decision, not a code default.
const (
	PolicyStrict      = "strict"
	PolicyLegacyAllow = "legacy-allow"
	PolicyPublic      = "public"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Redis configuration (viewer credential cache)
	RedisURL string

	// Access control
	AccessPolicy string
	DeviceAPIKey string

	// Map surface
	PollInterval  time.Duration
	PublicBaseURL string

	// Server configuration
	Port           string
	AllowedOrigins string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:   getEnv("MONGO_DB_NAME", "sos_tracker"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		AccessPolicy:   getEnv("ACCESS_POLICY", PolicyStrict),
		DeviceAPIKey:   getEnv("DEVICE_API_KEY", ""),
		PollInterval:   getEnvDuration("POLL_INTERVAL_SECONDS", 4) * time.Second,
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:5173, http://localhost:3000"),
	}

	switch cfg.AccessPolicy {
	case PolicyStrict, PolicyLegacyAllow, PolicyPublic:
	default:
		slog.Error("Unknown ACCESS_POLICY, falling back to strict", "policy", cfg.AccessPolicy)
		cfg.AccessPolicy = PolicyStrict
	}

	if cfg.DeviceAPIKey == "" {
		slog.Error("DEVICE_API_KEY not set; ingest endpoints will reject all requests")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultSeconds)
}
