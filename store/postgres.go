package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements SessionStore using PostgreSQL through pgx.
type PostgresStore struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    pgQuerier
}

// NewPostgres creates a Postgres session store on an existing pool and
// makes sure the sessions table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := createPostgresSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, q: pool}, nil
}

// NewPostgresFromDSN opens a connection pool and creates a Postgres session store.
func NewPostgresFromDSN(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	s, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func createPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NULL,
		ip_address    TEXT NULL,
		user_agent    TEXT NULL,
		last_activity BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS sessions_user_id_index ON sessions (user_id);
	CREATE INDEX IF NOT EXISTS sessions_last_activity_index ON sessions (last_activity);
	`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Save inserts or overwrites a session.
func (s *PostgresStore) Save(ctx context.Context, session *Session) error {
	_, err := s.q.Exec(ctx, `
	INSERT INTO sessions (id, user_id, ip_address, user_agent, last_activity)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		ip_address = EXCLUDED.ip_address,
		user_agent = EXCLUDED.user_agent,
		last_activity = EXCLUDED.last_activity`,
		session.ID,
		optional(session.UserID),
		optional(session.IPAddress),
		optional(session.UserAgent),
		session.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save session: %w", err)
	}
	return nil
}

// SelectAllByUser returns all of a user's sessions, most recent first.
func (s *PostgresStore) SelectAllByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.q.Query(ctx, `
	SELECT id, COALESCE(user_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''), last_activity
	FROM sessions
	WHERE user_id = $1
	ORDER BY last_activity DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.IPAddress, &session.UserAgent, &session.LastActivity); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: error iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateActivity touches an existing session; a missing ID updates nothing.
func (s *PostgresStore) UpdateActivity(ctx context.Context, sessionID string, lastActivity int64, ip, userAgent string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE sessions SET last_activity = $1, ip_address = $2, user_agent = $3 WHERE id = $4`,
		lastActivity, optional(ip), optional(userAgent), sessionID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update session activity: %w", err)
	}
	return nil
}

// DeleteByID hard deletes a session.
func (s *PostgresStore) DeleteByID(ctx context.Context, sessionID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres: failed to delete session: %w", err)
	}
	return nil
}

// DeleteByIDs hard deletes sessions with a single ANY($1) statement.
func (s *PostgresStore) DeleteByIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	ct, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE id = ANY($1)`, sessionIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

// SelectDistinctUserIDs lists every owner with at least one session.
func (s *PostgresStore) SelectDistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT DISTINCT user_id FROM sessions WHERE user_id IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query session owners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan session owners: %w", err)
	}
	return ids, nil
}

// DeleteOlderThan removes every session last active before cutoff.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	ct, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE last_activity < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete expired sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

// WithinTx runs fn against a store bound to a single transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(SessionStore) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{q: tx})
	})
}

// Close closes the pool. It is a no-op for a transaction-bound store.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// optional maps the empty string to SQL NULL.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
