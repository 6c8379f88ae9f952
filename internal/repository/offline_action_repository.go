package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

// AttachmentReleaser frees locally staged files when queue rows go away.
// Cleanup runs on every deletion path, not just successful syncs.
type AttachmentReleaser interface {
	ReleaseRecord(collectionID int32, recordID int64) error
}

// OfflineActionRepository owns the offline queue. It is the single place
// implementing the queue-key collapsing rules: a save of the same kind
// supersedes in place, and a Delete queued over an unsynced Add removes
// both rows since nothing was ever persisted remotely.
type OfflineActionRepository struct {
	db     *sqlx.DB
	staged AttachmentReleaser
}

// NewOfflineActionRepository constructs the repository. releaser may be nil
// when staged attachments are not in play (tests).
func NewOfflineActionRepository(db *sqlx.DB, releaser AttachmentReleaser) *OfflineActionRepository {
	return &OfflineActionRepository{db: db, staged: releaser}
}

// SaveParams carries one queued mutation.
type SaveParams struct {
	CollectionID int32
	RecordID     int64
	Kind         models.ActionKind
	CourseID     int32
	GroupID      int32
	Fields       []models.FieldMutation
	QueuedAt     int64
}

const actionColumns = `collection_id, record_id, kind, course_id, group_id, fields, queued_at`

// Save upserts an action by its (collection, record, kind) key. A zero
// RecordID allocates a stable negative placeholder (-queuedAt) for a record
// created entirely offline. Queuing a Delete over an unsynced Add collapses
// both; collapsed reports that case and no row is written.
func (r *OfflineActionRepository) Save(ctx context.Context, params SaveParams) (*models.OfflineAction, bool, error) {
	if !params.Kind.Valid() {
		return nil, false, fmt.Errorf("save offline action: unknown kind %q", params.Kind)
	}
	if params.QueuedAt == 0 {
		params.QueuedAt = time.Now().UnixMilli()
	}
	if params.RecordID == 0 {
		params.RecordID = -params.QueuedAt
	}

	if params.Kind == models.ActionDelete && params.RecordID <= 0 {
		added, err := r.exists(ctx, params.CollectionID, params.RecordID, models.ActionAdd)
		if err != nil {
			return nil, false, err
		}
		if added {
			if err := r.DeleteAll(ctx, params.CollectionID, params.RecordID); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}
	}

	action := &models.OfflineAction{
		CollectionID: params.CollectionID,
		RecordID:     params.RecordID,
		Kind:         params.Kind,
		CourseID:     params.CourseID,
		GroupID:      params.GroupID,
		QueuedAt:     params.QueuedAt,
	}
	if err := action.SetFields(params.Fields); err != nil {
		return nil, false, err
	}

	const query = `INSERT INTO offline_actions (` + actionColumns + `)
	VALUES (:collection_id, :record_id, :kind, :course_id, :group_id, :fields, :queued_at)
	ON CONFLICT (collection_id, record_id, kind) DO UPDATE SET
		course_id = excluded.course_id,
		group_id = excluded.group_id,
		fields = excluded.fields,
		queued_at = excluded.queued_at`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return nil, false, fmt.Errorf("save offline action: %w", err)
	}
	return action, false, nil
}

// Get fetches one action by key.
func (r *OfflineActionRepository) Get(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) (*models.OfflineAction, error) {
	const query = `SELECT ` + actionColumns + ` FROM offline_actions
	WHERE collection_id = ? AND record_id = ? AND kind = ?`
	var action models.OfflineAction
	if err := r.db.GetContext(ctx, &action, query, collectionID, recordID, kind); err != nil {
		return nil, err
	}
	return &action, nil
}

// ListByRecord returns a record's pending actions ordered by queue time.
func (r *OfflineActionRepository) ListByRecord(ctx context.Context, collectionID int32, recordID int64) ([]models.OfflineAction, error) {
	const query = `SELECT ` + actionColumns + ` FROM offline_actions
	WHERE collection_id = ? AND record_id = ? ORDER BY queued_at ASC`
	var actions []models.OfflineAction
	if err := r.db.SelectContext(ctx, &actions, query, collectionID, recordID); err != nil {
		return nil, fmt.Errorf("list record actions: %w", err)
	}
	return actions, nil
}

// ListByCollection returns every pending action for a collection ordered by
// queue time.
func (r *OfflineActionRepository) ListByCollection(ctx context.Context, collectionID int32) ([]models.OfflineAction, error) {
	const query = `SELECT ` + actionColumns + ` FROM offline_actions
	WHERE collection_id = ? ORDER BY queued_at ASC`
	var actions []models.OfflineAction
	if err := r.db.SelectContext(ctx, &actions, query, collectionID); err != nil {
		return nil, fmt.Errorf("list collection actions: %w", err)
	}
	return actions, nil
}

// ListAll returns every pending action across collections.
func (r *OfflineActionRepository) ListAll(ctx context.Context) ([]models.OfflineAction, error) {
	const query = `SELECT ` + actionColumns + ` FROM offline_actions ORDER BY queued_at ASC`
	var actions []models.OfflineAction
	if err := r.db.SelectContext(ctx, &actions, query); err != nil {
		return nil, fmt.Errorf("list offline actions: %w", err)
	}
	return actions, nil
}

// Delete removes one action by key, releasing staged attachments when the
// removed action could have staged any.
func (r *OfflineActionRepository) Delete(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) error {
	const query = `DELETE FROM offline_actions
	WHERE collection_id = ? AND record_id = ? AND kind = ?`
	if _, err := r.db.ExecContext(ctx, query, collectionID, recordID, kind); err != nil {
		return fmt.Errorf("delete offline action: %w", err)
	}
	if kind == models.ActionAdd || kind == models.ActionEdit {
		return r.release(collectionID, recordID)
	}
	return nil
}

// DeleteAll removes every action for a record and releases its staged
// attachments.
func (r *OfflineActionRepository) DeleteAll(ctx context.Context, collectionID int32, recordID int64) error {
	const query = `DELETE FROM offline_actions WHERE collection_id = ? AND record_id = ?`
	if _, err := r.db.ExecContext(ctx, query, collectionID, recordID); err != nil {
		return fmt.Errorf("delete record actions: %w", err)
	}
	return r.release(collectionID, recordID)
}

// HasAny reports whether a collection has pending offline data.
func (r *OfflineActionRepository) HasAny(ctx context.Context, collectionID int32) (bool, error) {
	const query = `SELECT 1 FROM offline_actions WHERE collection_id = ? LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, collectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending actions: %w", err)
	}
	return true, nil
}

// CollectionIDs returns the distinct collections with pending data.
func (r *OfflineActionRepository) CollectionIDs(ctx context.Context) ([]int32, error) {
	const query = `SELECT DISTINCT collection_id FROM offline_actions ORDER BY collection_id`
	var ids []int32
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list pending collections: %w", err)
	}
	return ids, nil
}

func (r *OfflineActionRepository) exists(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) (bool, error) {
	const query = `SELECT 1 FROM offline_actions
	WHERE collection_id = ? AND record_id = ? AND kind = ? LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, collectionID, recordID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check offline action: %w", err)
	}
	return true, nil
}

func (r *OfflineActionRepository) release(collectionID int32, recordID int64) error {
	if r.staged == nil {
		return nil
	}
	if err := r.staged.ReleaseRecord(collectionID, recordID); err != nil {
		return fmt.Errorf("release staged attachments: %w", err)
	}
	return nil
}
