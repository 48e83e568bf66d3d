package sessiondedup

import (
	"time"

	"go.uber.org/zap"

	"github.com/aadithya-v/sessiondedup/live"
	"github.com/aadithya-v/sessiondedup/store"
)

// Config contains configuration options for the Manager.
type Config struct {
	// RetentionDays is the default age, in days of inactivity, after which
	// Cleanup deletes a session.
	// Default: 7.
	RetentionDays int

	// CleanupConcurrency bounds how many users Cleanup deduplicates in
	// parallel. Keep it below the store's connection budget.
	// Default: 4.
	CleanupConcurrency int

	// LiveRequestHeader marks requests sent by a reactive UI transport.
	// Touching a session from such a request also emits a live signal.
	// Default: "X-Live-Request".
	LiveRequestHeader string

	// SessionStore is the storage backend for sessions.
	// Default: SQLite store (creates sessions.db in current directory).
	SessionStore store.SessionStore

	// Notifier receives "session-updated" signals.
	// Default: signals are discarded.
	Notifier live.Notifier

	// DatabasePath is the path for the default SQLite database.
	// Only used if SessionStore is nil.
	// Default: "sessions.db".
	DatabasePath string

	// Logger receives structured logs.
	// Default: no-op logger.
	Logger *zap.Logger

	// Now returns the current time. Tests override it.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetentionDays:      7,
		CleanupConcurrency: 4,
		LiveRequestHeader:  "X-Live-Request",
		DatabasePath:       "sessions.db",
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.RetentionDays <= 0 {
		c.RetentionDays = defaults.RetentionDays
	}
	if c.CleanupConcurrency <= 0 {
		c.CleanupConcurrency = defaults.CleanupConcurrency
	}
	if c.LiveRequestHeader == "" {
		c.LiveRequestHeader = defaults.LiveRequestHeader
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Notifier == nil {
		c.Notifier = live.Nop{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
