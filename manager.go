package sessiondedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aadithya-v/sessiondedup/live"
	"github.com/aadithya-v/sessiondedup/store"
)

// Manager groups a user's sessions into devices and performs device-level
// terminations, deduplication and periodic cleanup.
type Manager struct {
	config   Config
	sessions store.SessionStore
	notifier live.Notifier
	logger   *zap.Logger
	now      func() time.Time

	// touches tracks activity updates still running after their request.
	touches sync.WaitGroup
}

// New creates a Manager with the given configuration.
// If SessionStore is not provided, a SQLite store is opened at DatabasePath.
func New(cfg Config) (*Manager, error) {
	cfg.applyDefaults()

	m := &Manager{
		config:   cfg,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}

	if cfg.SessionStore != nil {
		m.sessions = cfg.SessionStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("sessiondedup: failed to initialize SQLite store: %w", err)
		}
		m.sessions = sqliteStore
	}

	return m, nil
}

// Close waits for pending activity updates, then releases the store and
// the notifier. Should be called when the application shuts down.
func (m *Manager) Close() error {
	m.touches.Wait()

	var errs []error
	if err := m.sessions.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.notifier.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("sessiondedup: errors during close: %w", errors.Join(errs...))
	}
	return nil
}

// Store returns the underlying session store.
func (m *Manager) Store() store.SessionStore {
	return m.sessions
}

// RetentionDays returns the configured cleanup window in days.
func (m *Manager) RetentionDays() int {
	return m.config.RetentionDays
}

// Snapshot reads every session the user owns and groups them by device.
// Terminations act on a snapshot; take a fresh one for each action.
func (m *Manager) Snapshot(ctx context.Context, userID string) ([]DeviceGroup, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	sessions, err := m.sessions.SelectAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Group(sessions), nil
}

// ListDevices returns the user's devices as display views, most recent first.
func (m *Manager) ListDevices(ctx context.Context, userID, currentSessionID string) ([]DeviceView, error) {
	groups, err := m.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildViews(groups, currentSessionID), nil
}
