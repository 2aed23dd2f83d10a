package database

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// schema is portable between PostgreSQL and SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS upload_audit_log (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	level       TEXT NOT NULL,
	action      TEXT NOT NULL,
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	referer     TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_upload_audit_log_created_at ON upload_audit_log (created_at);
`

// Connect opens a PostgreSQL pool from a DSN or URL.
func Connect(ctx context.Context, dsn string, logger *log.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("connected to database")
	return db, nil
}

// Migrate creates the audit table if it is missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}
