package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// APIKeys gate the REST surface. Empty means the gate is disabled
	// (development; production deployments sit behind an external gate).
	APIKeys []string

	// Dispatcher tuning
	TargetLatency   time.Duration // warn when a single event exceeds this
	MaxEventsPerSec int           // token-bucket admission rate for fan-out
	RequestTimeout  time.Duration // default send_request timeout
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "a2abus.db"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		TargetLatency:   time.Duration(getEnvInt("TARGET_LATENCY_MS", 100)) * time.Millisecond,
		MaxEventsPerSec: getEnvInt("MAX_EVENTS_PER_SEC", 100),
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
	}

	// Parse API keys (comma-separated)
	if keys := os.Getenv("API_KEYS"); keys != "" {
		for _, entry := range strings.Split(keys, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.APIKeys = append(cfg.APIKeys, entry)
			}
		}
	}

	// In production, require a durable database
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
