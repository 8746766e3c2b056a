// Package sqlite implements the repository interfaces on an embedded SQLite
// database via the pure-Go modernc.org/sqlite driver, so the binary needs no
// CGo and no external database server.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.UserRepository
// and repository.NotificationRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Surface a bad path or permissions problem now, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight, which matters
	// once webhook deliveries and API reads overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// HealthCheck reports whether the database answers a ping.
func (db *DB) HealthCheck() bool {
	return db.conn.Ping() == nil
}

// migrate creates the schema. CREATE IF NOT EXISTS keeps it idempotent across
// restarts; there is no destructive migration path here.
func (db *DB) migrate() error {
	// Users: one row per GitHub account. github_id is the upsert key;
	// username gets an index because inbound webhook deliveries resolve the
	// recipient by repository owner login.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                      TEXT PRIMARY KEY,
			github_id               INTEGER NOT NULL UNIQUE,
			username                TEXT NOT NULL,
			name                    TEXT NOT NULL DEFAULT '',
			email                   TEXT NOT NULL DEFAULT '',
			avatar_url              TEXT NOT NULL DEFAULT '',
			profile_url             TEXT NOT NULL DEFAULT '',
			github_access_token     TEXT NOT NULL DEFAULT '',
			github_token_expires_at DATETIME,
			webhook_configured      INTEGER NOT NULL DEFAULT 0,
			created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Webhook notifications: one row per delivered event. The payload is the
	// raw event document stored as JSON text. Listing is always per user,
	// newest first; the unprocessed count drives the second index.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_notifications (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id),
			repository   TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			action       TEXT NOT NULL DEFAULT '',
			payload      TEXT NOT NULL DEFAULT '{}',
			processed    INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_created
			ON webhook_notifications(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_processed
			ON webhook_notifications(user_id, processed);
	`)
	if err != nil {
		return fmt.Errorf("creating webhook_notifications table: %w", err)
	}

	return nil
}
