package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

// RecordState is the terminal state of one record's reconciliation.
type RecordState string

const (
	// StateDiscarded: the record changed on the site after the actions were
	// queued, or the queue was inconsistent; all actions were dropped.
	StateDiscarded RecordState = "discarded"
	// StateDeleted: a queued delete was confirmed by the site.
	StateDeleted RecordState = "deleted"
	// StateApplied: queued actions were replayed against the site.
	StateApplied RecordState = "applied"
	// StateFailed: a connectivity failure interrupted the replay; the
	// remaining actions stay queued for the next pass.
	StateFailed RecordState = "failed"
)

// RecordOutcome summarises one record's reconciliation.
type RecordOutcome struct {
	State           RecordState
	RecordID        int64
	OfflineRecordID int64
	Deleted         bool
	Warnings        []models.Warning
}

// actionRemover is the queue deletion surface the reconciler needs.
type actionRemover interface {
	Delete(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) error
	DeleteAll(ctx context.Context, collectionID int32, recordID int64) error
}

// stagedSyncStore resolves and retires locally staged attachments.
type stagedSyncStore interface {
	List(collectionID int32, recordID int64, fieldID int32) ([]storage.StagedFile, error)
	RenameRecord(collectionID int32, oldRecordID, newRecordID int64) error
	ReleaseRecord(collectionID int32, recordID int64) error
}

// Reconciler replays one record's queued actions against the site. Replay
// order is fixed regardless of queue order: delete wins outright, then
// add/edit, then approval. A rejection from the site discards the offending
// action with a warning and replay continues; a connectivity failure stops
// the record and keeps everything still queued.
type Reconciler struct {
	actions  actionRemover
	remote   remote.Store
	staged   stagedSyncStore
	registry *fields.Registry
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReconciler constructs the reconciler. staged may be nil when attachments
// are not in play; metrics may be nil.
func NewReconciler(actions actionRemover, store remote.Store, staged stagedSyncStore, registry *fields.Registry, metrics *MetricsService, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		actions:  actions,
		remote:   store,
		staged:   staged,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// SyncRecord reconciles one record. actions must be the record's full queue
// ordered by queue time ascending and non-empty. The returned error is
// non-nil only for connectivity failures, which leave the queue untouched.
func (r *Reconciler) SyncRecord(ctx context.Context, collection models.Collection, recordID int64, actions []models.OfflineAction) (RecordOutcome, error) {
	outcome := RecordOutcome{State: StateFailed, RecordID: recordID}
	if recordID <= 0 {
		outcome.OfflineRecordID = recordID
	}
	if len(actions) == 0 {
		outcome.State = StateApplied
		return outcome, nil
	}

	modifiedAt, inconsistent, err := r.remoteModifiedAt(ctx, collection.ID, recordID, actions)
	if err != nil {
		return outcome, err
	}

	// A record changed on the site after the first action was queued, a
	// record that no longer exists, or a queue with no add for a record the
	// site never saw: offline work is stale and is dropped wholesale.
	if modifiedAt < 0 || modifiedAt >= actions[0].QueuedAt {
		if err := r.actions.DeleteAll(ctx, collection.ID, recordID); err != nil {
			return outcome, err
		}
		message := "the record was modified on the site; your offline changes were discarded"
		if inconsistent {
			message = appErrors.ErrQueueInconsistency.Message
		}
		outcome.State = StateDiscarded
		outcome.Warnings = append(outcome.Warnings, models.Warning{
			CollectionID: collection.ID,
			RecordID:     recordID,
			Message:      message,
		})
		return outcome, nil
	}

	if deleteAction := models.FindByKinds(actions, models.ActionDelete); deleteAction != nil {
		return r.replayDelete(ctx, collection, recordID, outcome)
	}

	if writeAction := models.FindByKinds(actions, models.ActionAdd, models.ActionEdit); writeAction != nil {
		outcome, err = r.replayWrite(ctx, collection, writeAction, outcome)
		if err != nil {
			return outcome, err
		}
	}

	if approveAction := models.FindByKinds(actions, models.ActionApprove, models.ActionDisapprove); approveAction != nil {
		outcome, err = r.replayApproval(ctx, collection, approveAction, outcome)
		if err != nil {
			return outcome, err
		}
	}

	outcome.State = StateApplied
	return outcome, nil
}

// remoteModifiedAt resolves the staleness reference point. A record the site
// knows returns its modification time; a well-formed not-found returns -1.
// Records that exist only offline return 0 when an add is queued, and -1
// (with the inconsistency flag) when the queue references a record that was
// never added.
func (r *Reconciler) remoteModifiedAt(ctx context.Context, collectionID int32, recordID int64, actions []models.OfflineAction) (int64, bool, error) {
	if recordID <= 0 {
		if models.FindByKinds(actions, models.ActionAdd) != nil {
			return 0, false, nil
		}
		return -1, true, nil
	}

	record, err := r.remote.FetchRecord(ctx, collectionID, recordID)
	r.observeRemote("fetch", err)
	if appErrors.IsNotFound(err) {
		return -1, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return record.ModifiedAt, false, nil
}

func (r *Reconciler) replayDelete(ctx context.Context, collection models.Collection, recordID int64, outcome RecordOutcome) (RecordOutcome, error) {
	if recordID > 0 {
		err := r.remote.SubmitDelete(ctx, recordID)
		r.observeRemote("delete", err)
		if appErrors.IsConnectivity(err) {
			return outcome, err
		}
		// A rejection still retires the local delete: retrying would not
		// change the site's answer.
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, models.Warning{
				CollectionID: collection.ID,
				RecordID:     recordID,
				Message:      err.Error(),
			})
		}
	}
	if err := r.actions.DeleteAll(ctx, collection.ID, recordID); err != nil {
		return outcome, err
	}
	outcome.State = StateDeleted
	outcome.Deleted = true
	return outcome, nil
}

func (r *Reconciler) replayWrite(ctx context.Context, collection models.Collection, action *models.OfflineAction, outcome RecordOutcome) (RecordOutcome, error) {
	mutations, err := action.Fields()
	if err != nil {
		return outcome, err
	}

	switch action.Kind {
	case models.ActionAdd:
		newID, err := r.remote.SubmitAdd(ctx, collection.ID, mutations, action.GroupID)
		r.observeRemote("add", err)
		if appErrors.IsConnectivity(err) {
			return outcome, err
		}
		if err != nil {
			return r.discardRejected(ctx, collection, action, outcome, err)
		}
		// The site assigned the real identity; everything downstream,
		// including staged attachments, keys off it from here.
		if r.staged != nil && action.RecordID != newID {
			if err := r.staged.RenameRecord(collection.ID, action.RecordID, newID); err != nil {
				r.logger.Warn("rename staged attachments failed",
					zap.Int32("collection_id", collection.ID),
					zap.Int64("record_id", newID),
					zap.Error(err))
			}
		}
		outcome = r.uploadStaged(ctx, collection, newID, mutations, outcome)
		if r.staged != nil {
			if err := r.staged.ReleaseRecord(collection.ID, newID); err != nil {
				r.logger.Warn("release staged attachments failed", zap.Error(err))
			}
		}
		if err := r.actions.Delete(ctx, collection.ID, action.RecordID, action.Kind); err != nil {
			return outcome, err
		}
		outcome.RecordID = newID

	case models.ActionEdit:
		err := r.remote.SubmitEdit(ctx, action.RecordID, mutations)
		r.observeRemote("edit", err)
		if appErrors.IsConnectivity(err) {
			return outcome, err
		}
		if err != nil {
			return r.discardRejected(ctx, collection, action, outcome, err)
		}
		outcome = r.uploadStaged(ctx, collection, action.RecordID, mutations, outcome)
		if err := r.actions.Delete(ctx, collection.ID, action.RecordID, action.Kind); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

func (r *Reconciler) replayApproval(ctx context.Context, collection models.Collection, action *models.OfflineAction, outcome RecordOutcome) (RecordOutcome, error) {
	// An add in the same pass replaced the placeholder with the server ID.
	targetID := outcome.RecordID
	if targetID <= 0 {
		targetID = action.RecordID
	}

	err := r.remote.SubmitApprove(ctx, targetID, action.Kind == models.ActionApprove)
	r.observeRemote("approve", err)
	if appErrors.IsConnectivity(err) {
		return outcome, err
	}
	if err != nil {
		return r.discardRejected(ctx, collection, action, outcome, err)
	}
	if err := r.actions.Delete(ctx, collection.ID, action.RecordID, action.Kind); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// discardRejected drops one rejected action with a warning and lets the
// caller continue with the rest of the record's queue.
func (r *Reconciler) discardRejected(ctx context.Context, collection models.Collection, action *models.OfflineAction, outcome RecordOutcome, cause error) (RecordOutcome, error) {
	if err := r.actions.Delete(ctx, collection.ID, action.RecordID, action.Kind); err != nil {
		return outcome, err
	}
	outcome.Warnings = append(outcome.Warnings, models.Warning{
		CollectionID: collection.ID,
		RecordID:     action.RecordID,
		Message:      cause.Error(),
	})
	return outcome, nil
}

// uploadStaged pushes locally staged attachments for file-aware fields to
// the site. The record mutation itself already succeeded, so an upload
// failure surfaces as a warning rather than keeping the action queued.
func (r *Reconciler) uploadStaged(ctx context.Context, collection models.Collection, recordID int64, mutations []models.FieldMutation, outcome RecordOutcome) RecordOutcome {
	if r.staged == nil || r.registry == nil {
		return outcome
	}
	for _, mutation := range mutations {
		if mutation.Subfield != "" {
			continue
		}
		field, ok := collection.FieldByID(mutation.FieldID)
		if !ok || !r.registry.Handler(field.Type).HasFiles() {
			continue
		}
		var bundle fields.FileBundle
		if err := json.Unmarshal([]byte(mutation.Value), &bundle); err != nil || !bundle.Offline {
			continue
		}
		staged, err := r.staged.List(collection.ID, recordID, mutation.FieldID)
		if err != nil {
			r.logger.Warn("list staged attachments failed",
				zap.Int32("field_id", mutation.FieldID), zap.Error(err))
			continue
		}
		for _, file := range staged {
			_, err := r.remote.UploadFile(ctx, collection.ID, recordID, mutation.FieldID, file)
			r.observeRemote("upload", err)
			if err != nil {
				outcome.Warnings = append(outcome.Warnings, models.Warning{
					CollectionID: collection.ID,
					RecordID:     recordID,
					Message:      "attachment " + file.Name + " could not be uploaded: " + err.Error(),
				})
			}
		}
	}
	return outcome
}

func (r *Reconciler) observeRemote(operation string, err error) {
	result := "ok"
	switch {
	case appErrors.IsConnectivity(err):
		result = "connectivity"
	case err != nil:
		result = "rejected"
	}
	r.metrics.ObserveRemoteCall(operation, result)
}
