package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BlockMode selects how a blocking verdict is rendered to the client.
const (
	// BlockModeMessage serves the fixed "Page Not Found" message body.
	BlockModeMessage = "message"
	// BlockModeNative serves a bare 404 and lets the frontend render it.
	BlockModeNative = "native"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	JWTSecret    string

	// Scoring engine.
	ScoreThreshold float64       // score at which a record blocks (100.0 by design)
	ExpiryInterval time.Duration // block window length per cycle
	NotifyInterval time.Duration // minimum interval between notifications per record
	BlockMode      string        // "message" or "native"

	// Capture.
	IgnorePatterns []string // URL regexes that bypass capture entirely

	// Retention.
	RequestLogMaxAge   time.Duration
	SessionLogMaxAge   time.Duration
	LoginAttemptMaxAge time.Duration
	TruncateSchedule   string // cron expression
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("RW_ENV", "development"),
		HTTPPort:           getEnv("RW_HTTP_PORT", "8080"),
		DatabasePath:       getEnv("RW_DB_PATH", filepath.Join("data", "roadwarden.db")),
		JWTSecret:          getEnv("RW_JWT_SECRET", ""),
		ScoreThreshold:     getEnvFloat("RW_SCORE_THRESHOLD", 100.0),
		ExpiryInterval:     getEnvSeconds("RW_EXPIRY_SECONDS", 600),
		NotifyInterval:     getEnvSeconds("RW_NOTIFY_INTERVAL_SECONDS", 300),
		BlockMode:          getEnv("RW_BLOCK_MODE", BlockModeMessage),
		IgnorePatterns:     getEnvList("RW_IGNORE_PATTERNS", `^/api/v1/health,^/metrics,^/assets/,\.(css|js|ico|png|svg|woff2?)$`),
		RequestLogMaxAge:   getEnvSeconds("RW_REQUEST_LOG_MAX_AGE_SECONDS", 30*24*3600),
		SessionLogMaxAge:   getEnvSeconds("RW_SESSION_LOG_MAX_AGE_SECONDS", 30*24*3600),
		LoginAttemptMaxAge: getEnvSeconds("RW_LOGIN_ATTEMPT_MAX_AGE_SECONDS", 90*24*3600),
		TruncateSchedule:   getEnv("RW_TRUNCATE_SCHEDULE", "0 3 * * *"),
	}

	if cfg.ScoreThreshold <= 0 {
		return Config{}, fmt.Errorf("RW_SCORE_THRESHOLD must be positive, got %v", cfg.ScoreThreshold)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
