package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements SessionStore using MySQL.
type MySQLStore struct {
	*sqlStore
}

const mysqlUpsert = `
	INSERT INTO sessions (id, user_id, ip_address, user_agent, last_activity)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		user_id = VALUES(user_id),
		ip_address = VALUES(ip_address),
		user_agent = VALUES(user_agent),
		last_activity = VALUES(last_activity)
	`

// NewMySQL creates a new MySQL session store on an open connection pool.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{sqlStore: newSQLStore(db, "mysql", mysqlUpsert)}, nil
}

// NewMySQLFromDSN creates a new MySQL session store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            VARCHAR(255) PRIMARY KEY,
		user_id       VARCHAR(255) NULL,
		ip_address    VARCHAR(45) NULL,
		user_agent    TEXT NULL,
		last_activity BIGINT NOT NULL,

		INDEX sessions_user_id_index (user_id),
		INDEX sessions_last_activity_index (last_activity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}
