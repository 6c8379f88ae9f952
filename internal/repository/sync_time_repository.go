package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SyncTimeRepository remembers when each collection last finished a sync so
// unforced runs can be skipped inside the minimum interval.
type SyncTimeRepository struct {
	db *sqlx.DB
}

// NewSyncTimeRepository constructs the repository.
func NewSyncTimeRepository(db *sqlx.DB) *SyncTimeRepository {
	return &SyncTimeRepository{db: db}
}

// Get returns the last sync time in ms epoch, zero when never synced.
func (r *SyncTimeRepository) Get(ctx context.Context, collectionID int32) (int64, error) {
	const query = `SELECT synced_at FROM sync_times WHERE collection_id = ?`
	var syncedAt int64
	err := r.db.GetContext(ctx, &syncedAt, query, collectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sync time: %w", err)
	}
	return syncedAt, nil
}

// Set records a finished sync.
func (r *SyncTimeRepository) Set(ctx context.Context, collectionID int32, syncedAt int64) error {
	const query = `INSERT INTO sync_times (collection_id, synced_at) VALUES (?, ?)
	ON CONFLICT (collection_id) DO UPDATE SET synced_at = excluded.synced_at`
	if _, err := r.db.ExecContext(ctx, query, collectionID, syncedAt); err != nil {
		return fmt.Errorf("set sync time: %w", err)
	}
	return nil
}
