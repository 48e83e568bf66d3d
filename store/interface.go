package store

import "context"

// Session is one row of the session table.
// An empty UserID marks an anonymous session; those rows are never grouped.
type Session struct {
	ID           string
	UserID       string
	IPAddress    string
	UserAgent    string
	LastActivity int64 // unix seconds
}

// SessionStore defines the interface for session storage backends.
// Implementations must be safe for concurrent use.
//
// Every delete is idempotent by id: deleting a session that no longer
// exists is success, not an error.
type SessionStore interface {
	// Save inserts a session or overwrites the row with the same ID.
	Save(ctx context.Context, session *Session) error

	// SelectAllByUser returns every session owned by userID,
	// ordered by LastActivity descending, then by ID.
	SelectAllByUser(ctx context.Context, userID string) ([]*Session, error)

	// UpdateActivity sets last activity, IP and user agent for a session.
	// It is a no-op if the session does not exist.
	UpdateActivity(ctx context.Context, sessionID string, lastActivity int64, ip, userAgent string) error

	// DeleteByID removes a single session.
	DeleteByID(ctx context.Context, sessionID string) error

	// DeleteByIDs removes the given sessions and reports how many rows were removed.
	DeleteByIDs(ctx context.Context, sessionIDs []string) (int64, error)

	// SelectDistinctUserIDs returns every non-anonymous owner with at least one session.
	SelectDistinctUserIDs(ctx context.Context) ([]string, error)

	// DeleteOlderThan removes every session, anonymous or not,
	// whose LastActivity is strictly before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Transactor is implemented by stores that can run several operations
// inside one short transaction. The SessionStore passed to fn is bound to
// that transaction; its Close method must not be called.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(SessionStore) error) error
}
