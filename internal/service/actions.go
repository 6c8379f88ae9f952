package service

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
	"github.com/noah-isme/sma-collect-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

// actionWriter is the queue surface the front door needs.
type actionWriter interface {
	Save(ctx context.Context, params repository.SaveParams) (*models.OfflineAction, bool, error)
	Get(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) (*models.OfflineAction, error)
	DeleteAll(ctx context.Context, collectionID int32, recordID int64) error
}

// attachmentStager stages attachment payloads for later upload.
type attachmentStager interface {
	Store(collectionID int32, recordID int64, fieldID int32, name string, r io.Reader) (storage.StagedFile, error)
}

// MutationResult reports where a user mutation landed: on the site, or in
// the offline queue awaiting the next sync.
type MutationResult struct {
	RecordID int64 `json:"recordId"`
	Queued   bool  `json:"queued"`
}

// Actions is the front door for user mutations. Each operation goes to the
// site when the network allows and falls back to the offline queue on a
// connectivity failure; a well-formed rejection surfaces to the caller
// immediately and nothing is queued.
type Actions struct {
	queue    actionWriter
	remote   remote.Store
	registry *fields.Registry
	staged   attachmentStager
	network  NetworkChecker
	events   *Dispatcher
	logger   *zap.Logger
}

// NewActions constructs the front door. staged may be nil when attachments
// are not in play.
func NewActions(queue actionWriter, store remote.Store, registry *fields.Registry, staged attachmentStager, network NetworkChecker, events *Dispatcher, logger *zap.Logger) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if network == nil {
		network = AlwaysOnline
	}
	if events == nil {
		events = NewDispatcher()
	}
	return &Actions{
		queue:    queue,
		remote:   store,
		registry: registry,
		staged:   staged,
		network:  network,
		events:   events,
		logger:   logger,
	}
}

// BuildMutations shapes raw per-field form input into queued mutations via
// the field handlers.
func (a *Actions) BuildMutations(collection models.Collection, input map[int32]fields.FormInput) []models.FieldMutation {
	var mutations []models.FieldMutation
	for _, field := range collection.Fields {
		raw, ok := input[field.ID]
		if !ok {
			continue
		}
		handler := a.registry.Handler(field.Type)
		mutations = append(mutations, handler.EditDataFromInput(field, raw)...)
	}
	return mutations
}

// ValidateFields runs every field handler's validation over the mutations
// and returns the collected messages, one per failing field.
func (a *Actions) ValidateFields(collection models.Collection, mutations []models.FieldMutation) []string {
	byField := make(map[int32][]models.FieldMutation)
	for _, m := range mutations {
		byField[m.FieldID] = append(byField[m.FieldID], m)
	}

	var messages []string
	for _, field := range collection.Fields {
		handler := a.registry.Handler(field.Type)
		if msg := handler.Validate(field, byField[field.ID]); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}

// HasChanged reports whether raw form input differs from the record's stored
// contents for any field.
func (a *Actions) HasChanged(collection models.Collection, record models.Record, input map[int32]fields.FormInput) bool {
	for _, field := range collection.Fields {
		raw, ok := input[field.ID]
		if !ok {
			continue
		}
		if a.registry.Handler(field.Type).HasChanged(field, raw, record.Contents[field.ID]) {
			return true
		}
	}
	return false
}

// AddRecord creates a record from validated mutations. Offline the record
// gets a negative placeholder identity until a sync assigns the real one.
func (a *Actions) AddRecord(ctx context.Context, collection models.Collection, courseID, groupID int32, mutations []models.FieldMutation) (*MutationResult, error) {
	if msgs := a.ValidateFields(collection, mutations); len(msgs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(msgs, "; "))
	}

	queueAdd := func() (*MutationResult, error) {
		action, _, err := a.queue.Save(ctx, repository.SaveParams{
			CollectionID: collection.ID,
			Kind:         models.ActionAdd,
			CourseID:     courseID,
			GroupID:      groupID,
			Fields:       mutations,
		})
		if err != nil {
			return nil, err
		}
		a.notify(collection.ID, action.RecordID, false)
		return &MutationResult{RecordID: action.RecordID, Queued: true}, nil
	}

	if !a.network.Online() {
		return queueAdd()
	}
	recordID, err := a.remote.SubmitAdd(ctx, collection.ID, mutations, groupID)
	if appErrors.IsConnectivity(err) {
		return queueAdd()
	}
	if err != nil {
		return nil, err
	}
	a.notify(collection.ID, recordID, false)
	return &MutationResult{RecordID: recordID}, nil
}

// EditRecord updates a record from validated mutations. Editing a record
// that exists only offline rewrites its queued add in place.
func (a *Actions) EditRecord(ctx context.Context, collection models.Collection, recordID int64, mutations []models.FieldMutation) (*MutationResult, error) {
	if msgs := a.ValidateFields(collection, mutations); len(msgs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(msgs, "; "))
	}

	if recordID <= 0 {
		pending, err := a.queue.Get(ctx, collection.ID, recordID, models.ActionAdd)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrQueueInconsistency, "")
		}
		_, _, err = a.queue.Save(ctx, repository.SaveParams{
			CollectionID: collection.ID,
			RecordID:     recordID,
			Kind:         models.ActionAdd,
			CourseID:     pending.CourseID,
			GroupID:      pending.GroupID,
			Fields:       mutations,
			QueuedAt:     time.Now().UnixMilli(),
		})
		if err != nil {
			return nil, err
		}
		a.notify(collection.ID, recordID, false)
		return &MutationResult{RecordID: recordID, Queued: true}, nil
	}

	queueEdit := func() (*MutationResult, error) {
		_, _, err := a.queue.Save(ctx, repository.SaveParams{
			CollectionID: collection.ID,
			RecordID:     recordID,
			Kind:         models.ActionEdit,
			CourseID:     collection.CourseID,
			Fields:       mutations,
		})
		if err != nil {
			return nil, err
		}
		a.notify(collection.ID, recordID, false)
		return &MutationResult{RecordID: recordID, Queued: true}, nil
	}

	if !a.network.Online() {
		return queueEdit()
	}
	err := a.remote.SubmitEdit(ctx, recordID, mutations)
	if appErrors.IsConnectivity(err) {
		return queueEdit()
	}
	if err != nil {
		return nil, err
	}
	a.notify(collection.ID, recordID, false)
	return &MutationResult{RecordID: recordID}, nil
}

// DeleteRecord removes a record. Deleting a record that exists only offline
// tears down its whole queue with no remote call.
func (a *Actions) DeleteRecord(ctx context.Context, collection models.Collection, recordID int64) (*MutationResult, error) {
	if recordID <= 0 {
		if err := a.queue.DeleteAll(ctx, collection.ID, recordID); err != nil {
			return nil, err
		}
		a.notify(collection.ID, recordID, true)
		return &MutationResult{RecordID: recordID, Queued: true}, nil
	}

	queueDelete := func() (*MutationResult, error) {
		_, _, err := a.queue.Save(ctx, repository.SaveParams{
			CollectionID: collection.ID,
			RecordID:     recordID,
			Kind:         models.ActionDelete,
			CourseID:     collection.CourseID,
		})
		if err != nil {
			return nil, err
		}
		a.notify(collection.ID, recordID, true)
		return &MutationResult{RecordID: recordID, Queued: true}, nil
	}

	if !a.network.Online() {
		return queueDelete()
	}
	err := a.remote.SubmitDelete(ctx, recordID)
	if appErrors.IsConnectivity(err) {
		return queueDelete()
	}
	if err != nil {
		return nil, err
	}
	a.notify(collection.ID, recordID, true)
	return &MutationResult{RecordID: recordID}, nil
}

// SetApproval approves or disapproves a record. Records that exist only
// offline carry no approval queue; their state lives in the pending add.
func (a *Actions) SetApproval(ctx context.Context, collection models.Collection, recordID int64, approve bool) (*MutationResult, error) {
	if recordID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a record pending upload cannot be approved")
	}

	kind := models.ActionDisapprove
	if approve {
		kind = models.ActionApprove
	}
	queueApproval := func() (*MutationResult, error) {
		_, _, err := a.queue.Save(ctx, repository.SaveParams{
			CollectionID: collection.ID,
			RecordID:     recordID,
			Kind:         kind,
			CourseID:     collection.CourseID,
		})
		if err != nil {
			return nil, err
		}
		a.notify(collection.ID, recordID, false)
		return &MutationResult{RecordID: recordID, Queued: true}, nil
	}

	if !a.network.Online() {
		return queueApproval()
	}
	err := a.remote.SubmitApprove(ctx, recordID, approve)
	if appErrors.IsConnectivity(err) {
		return queueApproval()
	}
	if err != nil {
		return nil, err
	}
	a.notify(collection.ID, recordID, false)
	return &MutationResult{RecordID: recordID}, nil
}

// StageAttachment stores an attachment payload for a field so a queued add
// or edit can upload it during sync.
func (a *Actions) StageAttachment(collectionID int32, recordID int64, fieldID int32, name string, payload io.Reader) (storage.StagedFile, error) {
	if a.staged == nil {
		return storage.StagedFile{}, appErrors.Clone(appErrors.ErrValidation, "attachment staging is not configured")
	}
	return a.staged.Store(collectionID, recordID, fieldID, name, payload)
}

func (a *Actions) notify(collectionID int32, recordID int64, deleted bool) {
	a.events.RecordChanged(models.RecordChanged{
		CollectionID: collectionID,
		RecordID:     recordID,
		Deleted:      deleted,
	})
}
