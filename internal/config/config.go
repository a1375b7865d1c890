package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// Engine client.
	ServerURL      string
	GatewayKind    string
	AuthToken      string
	RequestTimeout time.Duration
	StoreDriver    string
	StorePath      string
	RedisURL       string
	// MetricsAddr serves the client's Prometheus metrics when set.
	MetricsAddr string

	// Proctoring policy. Defaults must not change without product input.
	ViolationDebounce      time.Duration
	StrikeLimit            int
	StartRetryAttempts     int
	SubmitRetryMaxInterval time.Duration

	// Dev server.
	ServerPort  string
	GinMode     string
	DatabaseURL string
	MaxDBConns  int32
	JWTSecret   string
	JWTExpiry   time.Duration
	// SubmitGrace is how long after the deadline a submit is still graded.
	SubmitGrace time.Duration
	// SubmitRateLimit caps submit and start calls per student per minute.
	SubmitRateLimit int
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		ServerURL:      getEnv("SERVER_URL", "http://localhost:8080"),
		GatewayKind:    getEnv("GATEWAY", "http"),
		AuthToken:      getEnv("AUTH_TOKEN", ""),
		RequestTimeout: getEnvMillis("REQUEST_TIMEOUT_MS", 10000),
		StoreDriver:    getEnv("STORE_DRIVER", "sqlite"),
		StorePath:      getEnv("STORE_PATH", "./proctor.db"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),

		ViolationDebounce:      getEnvMillis("VIOLATION_DEBOUNCE_MS", 3000),
		StrikeLimit:            getEnvInt("STRIKE_LIMIT", 3),
		StartRetryAttempts:     getEnvInt("START_RETRY_ATTEMPTS", 3),
		SubmitRetryMaxInterval: getEnvMillis("SUBMIT_RETRY_MAX_INTERVAL_MS", 30000),

		ServerPort:     getEnv("SERVER_PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MaxDBConns:     int32(getEnvInt("MAX_DB_CONNS", 16)),
		JWTSecret:      getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:      time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),

		SubmitGrace:     time.Duration(getEnvInt("SUBMIT_GRACE_SECONDS", 120)) * time.Second,
		SubmitRateLimit: getEnvInt("SUBMIT_RATE_LIMIT", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
