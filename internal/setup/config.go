// Package setup turns process environment into the pieces a binary needs:
// configuration, a logger and a session store.
package setup

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env is the process configuration shared by the cleanup command and the
// demo server.
type Env struct {
	// Driver selects the session backend: sqlite, mysql, postgres, redis or memory.
	Driver string `env:"SESSIONS_DRIVER" envDefault:"sqlite"`
	// DSN is the backend address. A file path for sqlite, a URL for redis.
	DSN string `env:"SESSIONS_DSN" envDefault:"sessions.db"`

	RetentionDays      int    `env:"SESSIONS_RETENTION_DAYS" envDefault:"7"`
	CleanupConcurrency int    `env:"CLEANUP_CONCURRENCY" envDefault:"4"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr           string `env:"HTTP_ADDR" envDefault:":8080"`

	// RedisAddr enables live signals over Redis pub/sub when set.
	RedisAddr string `env:"REDIS_ADDR"`
}

// Load reads an optional .env file from the working directory, then parses
// the environment into Env.
func Load() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("setup: failed to load .env: %w", err)
	}

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("setup: failed to parse environment: %w", err)
	}
	return cfg, nil
}
