package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Config carries process-level settings. Values come from the environment
// (optionally seeded from a .env file) with sensible defaults; the command
// line can override them via flags.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// DataDir is where blobs and the metadata index are stored.
	DataDir string

	// AllowedOrigin is the origin granted CORS access.
	AllowedOrigin string

	// IndexDriver selects the metadata index backing: "snapshot" (default)
	// or "sqlite".
	IndexDriver string

	// SQLitePath is the index database path when IndexDriver is "sqlite".
	// Empty means a default file inside DataDir.
	SQLitePath string
}

// Load reads configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Port:          getEnv("IMAGEBIN_PORT", "8000"),
		DataDir:       getEnv("IMAGEBIN_DATA_DIR", "./public"),
		AllowedOrigin: getEnv("IMAGEBIN_ALLOWED_ORIGIN", "http://localhost:3000"),
		IndexDriver:   getEnv("IMAGEBIN_INDEX_DRIVER", "snapshot"),
		SQLitePath:    getEnv("IMAGEBIN_SQLITE_PATH", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
