// Package config contains everything related to configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Provider is the key used to look up credentials in the auth store.
	Provider string
	// APIBaseURL is an operator-supplied remote endpoint, used when no local
	// process can be discovered. Empty means "use the well-known default"
	// for the environment-token source and "skip" for the stored-auth source.
	APIBaseURL string
	// APIToken is an operator-supplied credential for the remote endpoint.
	APIToken string
	// AuthStorePath points at the host's credential store JSON document.
	AuthStorePath string
	// HistoryDBPath is the SQLite file recording past snapshots.
	HistoryDBPath string
	// PollInterval is the background refresh period.
	PollInterval time.Duration
}

// Default values
const (
	defaultProvider     = "windsurf"
	defaultPollInterval = 2 * time.Minute
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		Provider:      getEnvString("CASCADE_PROVIDER", defaultProvider),
		APIBaseURL:    getEnvString("CASCADE_API_URL", ""),
		APIToken:      getEnvString("CASCADE_API_TOKEN", ""),
		AuthStorePath: getEnvString("AUTH_STORE_PATH", getDefaultAuthStorePath()),
		HistoryDBPath: getEnvString("HISTORY_DB_PATH", getDefaultHistoryDBPath()),
		PollInterval:  getEnvDuration("QUOTA_POLL_INTERVAL", defaultPollInterval),
	}

	// Ensure history directory exists
	if err := ensureDir(filepath.Dir(cfg.HistoryDBPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "cascade-quota-engine", ".env"),
			filepath.Join(home, ".config", "opencode", ".env"),
		)
	}

	return paths
}

// getDefaultAuthStorePath returns the default credential store location.
func getDefaultAuthStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "auth.json"
	}
	return filepath.Join(home, ".local", "share", "opencode", "auth.json")
}

// getDefaultHistoryDBPath returns the default path for the SQLite database.
func getDefaultHistoryDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".config", "cascade-quota-engine", "history.db")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
