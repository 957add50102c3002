// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strings"
	"time"
)

// ServerConfig carries everything cmd/server needs to wire the process.
// DATABASE_URL and REDIS_URL are optional: without them the server runs on
// the in-memory store.
type ServerConfig struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
}

// LoadFromEnv reads the server configuration, applying defaults for
// everything unset.
func LoadFromEnv() ServerConfig {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("RAILS_API_ADDR", ":8080")
	}

	return ServerConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:        envDurationDefault("RAILS_CACHE_TTL", 30*time.Second),
		ShutdownTimeout: envDurationDefault("RAILS_SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
