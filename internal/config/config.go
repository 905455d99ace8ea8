package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Presence modes. Exclusive mode mirrors the single-session demo policy:
// whenever one user syncs their profile, everyone else is marked offline.
// Shared mode (the default) touches only the syncing user.
const (
	PresenceShared    = "shared"
	PresenceExclusive = "exclusive"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	JWTSecret   string

	// PresenceMode selects how a profile sync affects other users' online
	// flags: "shared" or "exclusive".
	PresenceMode string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		RedisURL:     os.Getenv("REDIS_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		PresenceMode: getEnv("PRESENCE_MODE", PresenceShared),
	}

	if cfg.PresenceMode != PresenceShared && cfg.PresenceMode != PresenceExclusive {
		panic("PRESENCE_MODE must be \"shared\" or \"exclusive\"")
	}

	// In production, require a real database and a signing secret
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	// Development gets a well-known secret so local tokens verify out of
	// the box.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ExclusivePresence reports whether a profile sync forces other users offline.
func (c *Config) ExclusivePresence() bool {
	return c.PresenceMode == PresenceExclusive
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
