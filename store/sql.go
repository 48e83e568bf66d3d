package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// deleteChunkSize keeps IN lists well below the placeholder limits of
// SQLite (999 on old builds) and MySQL.
const deleteChunkSize = 500

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// sqlStore holds the database/sql queries shared by the SQLite and MySQL
// backends. Both drivers use "?" placeholders.
type sqlStore struct {
	db     *sql.DB // nil when bound to a transaction
	q      querier
	name   string // error prefix, e.g. "sqlite"
	upsert string
}

func newSQLStore(db *sql.DB, name, upsert string) *sqlStore {
	return &sqlStore{db: db, q: db, name: name, upsert: upsert}
}

// Save inserts or overwrites a session.
func (s *sqlStore) Save(ctx context.Context, session *Session) error {
	_, err := s.q.ExecContext(ctx, s.upsert,
		session.ID,
		nullString(session.UserID),
		nullString(session.IPAddress),
		nullString(session.UserAgent),
		session.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to save session: %w", s.name, err)
	}
	return nil
}

// SelectAllByUser returns all of a user's sessions, most recent first.
func (s *sqlStore) SelectAllByUser(ctx context.Context, userID string) ([]*Session, error) {
	query := `
	SELECT id, user_id, ip_address, user_agent, last_activity
	FROM sessions
	WHERE user_id = ?
	ORDER BY last_activity DESC, id ASC
	`

	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query sessions: %w", s.name, err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating sessions: %w", s.name, err)
	}

	return sessions, nil
}

// UpdateActivity touches an existing session; a missing ID updates nothing.
func (s *sqlStore) UpdateActivity(ctx context.Context, sessionID string, lastActivity int64, ip, userAgent string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, ip_address = ?, user_agent = ? WHERE id = ?",
		lastActivity, nullString(ip), nullString(userAgent), sessionID,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to update session activity: %w", s.name, err)
	}
	return nil
}

// DeleteByID hard deletes a session.
func (s *sqlStore) DeleteByID(ctx context.Context, sessionID string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("%s: failed to delete session: %w", s.name, err)
	}
	return nil
}

// DeleteByIDs hard deletes sessions in chunks and sums the affected rows.
func (s *sqlStore) DeleteByIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	var total int64
	for start := 0; start < len(sessionIDs); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(sessionIDs))
		chunk := sessionIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "DELETE FROM sessions WHERE id IN (" + placeholders(len(chunk)) + ")"

		res, err := s.q.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("%s: failed to delete sessions: %w", s.name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("%s: failed to count deleted sessions: %w", s.name, err)
		}
		total += n
	}
	return total, nil
}

// SelectDistinctUserIDs lists every owner with at least one session.
func (s *sqlStore) SelectDistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM sessions WHERE user_id IS NOT NULL ORDER BY user_id",
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query session owners: %w", s.name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: failed to scan session owner: %w", s.name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating session owners: %w", s.name, err)
	}
	return ids, nil
}

// DeleteOlderThan removes every session last active before cutoff.
func (s *sqlStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete expired sessions: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count expired sessions: %w", s.name, err)
	}
	return n, nil
}

// WithinTx runs fn against a store bound to a single transaction.
func (s *sqlStore) WithinTx(ctx context.Context, fn func(SessionStore) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", s.name, err)
	}

	if err := fn(&sqlStore{q: tx, name: s.name, upsert: s.upsert}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", s.name, err)
	}
	return nil
}

// Close closes the database connection. It is a no-op for a
// transaction-bound store.
func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) scanSession(rows *sql.Rows) (*Session, error) {
	var (
		session           Session
		userID, ip, agent sql.NullString
	)
	err := rows.Scan(
		&session.ID,
		&userID,
		&ip,
		&agent,
		&session.LastActivity,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scan session: %w", s.name, err)
	}
	session.UserID = userID.String
	session.IPAddress = ip.String
	session.UserAgent = agent.String
	return &session, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
