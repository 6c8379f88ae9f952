package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noah-isme/sma-collect-sync/pkg/config"
)

// Schema creates the offline queue tables when missing. Kept idempotent so
// the agent can run it on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS offline_actions (
	collection_id INTEGER NOT NULL,
	record_id     INTEGER NOT NULL,
	kind          TEXT    NOT NULL,
	course_id     INTEGER NOT NULL,
	group_id      INTEGER NOT NULL DEFAULT 0,
	fields        TEXT    NOT NULL DEFAULT '[]',
	queued_at     INTEGER NOT NULL,
	PRIMARY KEY (collection_id, record_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_offline_actions_collection
	ON offline_actions (collection_id, queued_at);

CREATE TABLE IF NOT EXISTS sync_times (
	collection_id INTEGER PRIMARY KEY,
	synced_at     INTEGER NOT NULL
);
`

// NewSQLite opens the embedded store backing the offline queue.
func NewSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent record reconciliation.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
