// Package config loads and validates application configuration from
// environment variables. A .env file in the working directory is loaded
// first when present, so local development needs no exported variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// Timezone is the IANA zone meeting dates and times are interpreted in.
	// Defaults to the process-local zone when unset.
	Timezone *time.Location

	// BufferMinutes is the safety margin added on top of travel time when
	// computing the departure instant. Defaults to 10.
	BufferMinutes int

	// NagCount is the number of discrete proof-of-departure nag alerts
	// scheduled per armed appointment. Defaults to 30.
	NagCount int

	// NagInterval is the spacing between consecutive nag alerts.
	// Set NAG_INTERVAL_SECONDS to override. Defaults to 60s.
	NagInterval time.Duration

	// ProofRadiusMeters is the acceptance radius around the origin for
	// proof captures. Defaults to 200.
	ProofRadiusMeters float64

	// EarlyTolerance is how long before the departure instant a proof
	// capture is still accepted. Defaults to 10m.
	EarlyTolerance time.Duration

	// LateTolerance is how long after the departure instant a proof capture
	// is still accepted. Defaults to 5m.
	LateTolerance time.Duration
}

// Load reads configuration from the environment (after merging a .env file if
// one exists) and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	// Ignore the error: a missing .env file simply means the environment is
	// already populated (the production case).
	_ = godotenv.Load()

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		BufferMinutes:     getIntEnv("BUFFER_MINUTES", 10),
		NagCount:          getIntEnv("NAG_COUNT", 30),
		NagInterval:       time.Duration(getIntEnv("NAG_INTERVAL_SECONDS", 60)) * time.Second,
		ProofRadiusMeters: float64(getIntEnv("PROOF_RADIUS_METERS", 200)),
		EarlyTolerance:    time.Duration(getIntEnv("EARLY_TOLERANCE_MINUTES", 10)) * time.Minute,
		LateTolerance:     time.Duration(getIntEnv("LATE_TOLERANCE_MINUTES", 5)) * time.Minute,
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		cfg.Timezone = loc
	} else {
		cfg.Timezone = time.Local
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getIntEnv returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a number.
func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
