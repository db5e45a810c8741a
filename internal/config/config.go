package config

import (
	"os"

	"github.com/joho/godotenv"
)

// App holds squadsyncd configuration read from the environment.
type App struct {
	Port         string
	DBPath       string
	LogLevel     string
	LogFormat    string
	RelayURL     string // empty means permanent local-fallback mode
	GeminiAPIKey string
	GeminiModel  string
}

// Relay holds syncrelay configuration read from the environment.
type Relay struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
}

// LoadApp reads squadsyncd configuration, loading a .env file first if one
// exists.
func LoadApp() App {
	_ = godotenv.Load()

	return App{
		Port:         envOr("SQUADSYNC_PORT", "8080"),
		DBPath:       envOr("SQUADSYNC_DB_PATH", "squadsync.db"),
		LogLevel:     os.Getenv("SQUADSYNC_LOG_LEVEL"),
		LogFormat:    os.Getenv("SQUADSYNC_LOG_FORMAT"),
		RelayURL:     os.Getenv("SQUADSYNC_RELAY_URL"),
		GeminiAPIKey: os.Getenv("SQUADSYNC_GEMINI_API_KEY"),
		GeminiModel:  envOr("SQUADSYNC_GEMINI_MODEL", "gemini-3-flash-preview"),
	}
}

// LoadRelay reads syncrelay configuration, loading a .env file first if one
// exists.
func LoadRelay() Relay {
	_ = godotenv.Load()

	return Relay{
		Port:      envOr("SYNCRELAY_PORT", "8090"),
		DBPath:    envOr("SYNCRELAY_DB_PATH", "syncrelay.db"),
		LogLevel:  os.Getenv("SYNCRELAY_LOG_LEVEL"),
		LogFormat: os.Getenv("SYNCRELAY_LOG_FORMAT"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
