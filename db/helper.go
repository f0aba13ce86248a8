package db

import (
	"database/sql"
	"fmt"
	"net/url"
)

// pragmas run on every pooled connection, not just the first one.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS connections (
        id TEXT PRIMARY KEY,
        remote_addr TEXT NOT NULL DEFAULT '',
        user_agent TEXT NOT NULL DEFAULT '',
        opened_at INTEGER NOT NULL,
        closed_at INTEGER,
        events_in INTEGER NOT NULL DEFAULT 0,
        events_out INTEGER NOT NULL DEFAULT 0,
        dropped INTEGER NOT NULL DEFAULT 0
    );`,

	`CREATE INDEX IF NOT EXISTS idx_connections_opened
        ON connections(opened_at);`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
