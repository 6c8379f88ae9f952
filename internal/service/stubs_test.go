package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
	"github.com/noah-isme/sma-collect-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

func errNotFound() error     { return appErrors.Clone(appErrors.ErrNotFound, "") }
func errConnectivity() error { return appErrors.Clone(appErrors.ErrConnectivity, "") }
func errRejection(msg string) error {
	return appErrors.Clone(appErrors.ErrRemoteRejection, msg)
}

type actionKey struct {
	collectionID int32
	recordID     int64
	kind         models.ActionKind
}

// queueStub is an in-memory offline queue mirroring the repository's
// collapsing rules closely enough for service tests.
type queueStub struct {
	mu      sync.Mutex
	actions map[actionKey]models.OfflineAction
}

func newQueueStub() *queueStub {
	return &queueStub{actions: make(map[actionKey]models.OfflineAction)}
}

func (q *queueStub) put(action models.OfflineAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions[actionKey{action.CollectionID, action.RecordID, action.Kind}] = action
}

func (q *queueStub) Save(ctx context.Context, params repository.SaveParams) (*models.OfflineAction, bool, error) {
	if params.QueuedAt == 0 {
		params.QueuedAt = time.Now().UnixMilli()
	}
	if params.RecordID == 0 {
		params.RecordID = -params.QueuedAt
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if params.Kind == models.ActionDelete && params.RecordID <= 0 {
		if _, ok := q.actions[actionKey{params.CollectionID, params.RecordID, models.ActionAdd}]; ok {
			for key := range q.actions {
				if key.collectionID == params.CollectionID && key.recordID == params.RecordID {
					delete(q.actions, key)
				}
			}
			return nil, true, nil
		}
	}
	action := models.OfflineAction{
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
	q.actions[actionKey{action.CollectionID, action.RecordID, action.Kind}] = action
	return &action, false, nil
}

func (q *queueStub) Get(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) (*models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if action, ok := q.actions[actionKey{collectionID, recordID, kind}]; ok {
		return &action, nil
	}
	return nil, sql.ErrNoRows
}

func (q *queueStub) Delete(ctx context.Context, collectionID int32, recordID int64, kind models.ActionKind) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.actions, actionKey{collectionID, recordID, kind})
	return nil
}

func (q *queueStub) DeleteAll(ctx context.Context, collectionID int32, recordID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key := range q.actions {
		if key.collectionID == collectionID && key.recordID == recordID {
			delete(q.actions, key)
		}
	}
	return nil
}

func (q *queueStub) ListByRecord(ctx context.Context, collectionID int32, recordID int64) ([]models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.OfflineAction
	for key, action := range q.actions {
		if key.collectionID == collectionID && key.recordID == recordID {
			out = append(out, action)
		}
	}
	sortActions(out)
	return out, nil
}

func (q *queueStub) ListByCollection(ctx context.Context, collectionID int32) ([]models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.OfflineAction
	for key, action := range q.actions {
		if key.collectionID == collectionID {
			out = append(out, action)
		}
	}
	sortActions(out)
	return out, nil
}

func (q *queueStub) CollectionIDs(ctx context.Context) ([]int32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[int32]struct{})
	var ids []int32
	for key := range q.actions {
		if _, ok := seen[key.collectionID]; !ok {
			seen[key.collectionID] = struct{}{}
			ids = append(ids, key.collectionID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (q *queueStub) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

func sortActions(actions []models.OfflineAction) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].QueuedAt < actions[j].QueuedAt })
}

// remoteStub scripts the site's behaviour per operation.
type remoteStub struct {
	mu sync.Mutex

	collection models.Collection
	records    map[int64]models.Record
	pages      map[int]remote.Page

	nextAddID  int64
	fetchErr   error
	addErr     error
	editErr    error
	deleteErr  error
	approveErr error
	uploadErr  error

	calls   []string
	deleted []int64
	adds    [][]models.FieldMutation
	edits   map[int64][]models.FieldMutation
	uploads []string
}

func newRemoteStub(collection models.Collection) *remoteStub {
	return &remoteStub{
		collection: collection,
		records:    make(map[int64]models.Record),
		pages:      make(map[int]remote.Page),
		edits:      make(map[int64][]models.FieldMutation),
		nextAddID:  100,
	}
}

func (r *remoteStub) called(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *remoteStub) FetchCollection(ctx context.Context, collectionID int32) (models.Collection, error) {
	r.called("collection")
	return r.collection, nil
}

func (r *remoteStub) FetchRecord(ctx context.Context, collectionID int32, recordID int64) (models.Record, error) {
	r.called("fetch")
	if r.fetchErr != nil {
		return models.Record{}, r.fetchErr
	}
	record, ok := r.records[recordID]
	if !ok {
		return models.Record{}, errNotFound()
	}
	return record, nil
}

func (r *remoteStub) FetchPage(ctx context.Context, collectionID int32, q remote.PageQuery) (remote.Page, error) {
	r.called("page")
	if r.fetchErr != nil {
		return remote.Page{}, r.fetchErr
	}
	return r.pages[q.Page], nil
}

func (r *remoteStub) SearchPage(ctx context.Context, collectionID int32, q remote.PageQuery) (remote.Page, error) {
	r.called("search")
	if r.fetchErr != nil {
		return remote.Page{}, r.fetchErr
	}
	return r.pages[q.Page], nil
}

func (r *remoteStub) SubmitAdd(ctx context.Context, collectionID int32, fields []models.FieldMutation, groupID int32) (int64, error) {
	r.called("add")
	if r.addErr != nil {
		return 0, r.addErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds = append(r.adds, fields)
	r.nextAddID++
	return r.nextAddID, nil
}

func (r *remoteStub) SubmitEdit(ctx context.Context, recordID int64, fields []models.FieldMutation) error {
	r.called("edit")
	if r.editErr != nil {
		return r.editErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits[recordID] = fields
	return nil
}

func (r *remoteStub) SubmitDelete(ctx context.Context, recordID int64) error {
	r.called("delete")
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, recordID)
	return nil
}

func (r *remoteStub) SubmitApprove(ctx context.Context, recordID int64, approve bool) error {
	r.called("approve")
	return r.approveErr
}

func (r *remoteStub) UploadFile(ctx context.Context, collectionID int32, recordID int64, fieldID int32, file storage.StagedFile) (models.FileRef, error) {
	r.called("upload")
	if r.uploadErr != nil {
		return models.FileRef{}, r.uploadErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, file.Name)
	return models.FileRef{Name: file.Name, URL: "https://site/" + file.Name}, nil
}

// stagedStub fakes the attachment staging area.
type stagedStub struct {
	files   map[[3]int64][]storage.StagedFile
	renames [][2]int64
}

func newStagedStub() *stagedStub {
	return &stagedStub{files: make(map[[3]int64][]storage.StagedFile)}
}

func (s *stagedStub) key(collectionID int32, recordID int64, fieldID int32) [3]int64 {
	return [3]int64{int64(collectionID), recordID, int64(fieldID)}
}

func (s *stagedStub) put(collectionID int32, recordID int64, fieldID int32, names ...string) {
	key := s.key(collectionID, recordID, fieldID)
	for _, name := range names {
		s.files[key] = append(s.files[key], storage.StagedFile{Name: name, Path: "/staged/" + name})
	}
}

func (s *stagedStub) List(collectionID int32, recordID int64, fieldID int32) ([]storage.StagedFile, error) {
	return s.files[s.key(collectionID, recordID, fieldID)], nil
}

func (s *stagedStub) RenameRecord(collectionID int32, oldRecordID, newRecordID int64) error {
	s.renames = append(s.renames, [2]int64{oldRecordID, newRecordID})
	for key, files := range s.files {
		if key[0] == int64(collectionID) && key[1] == oldRecordID {
			s.files[[3]int64{key[0], newRecordID, key[2]}] = files
			delete(s.files, key)
		}
	}
	return nil
}

func (s *stagedStub) ReleaseRecord(collectionID int32, recordID int64) error {
	for key := range s.files {
		if key[0] == int64(collectionID) && key[1] == recordID {
			delete(s.files, key)
		}
	}
	return nil
}

// syncTimeStub records per-collection sync times in memory.
type syncTimeStub struct {
	mu    sync.Mutex
	times map[int32]int64
}

func newSyncTimeStub() *syncTimeStub {
	return &syncTimeStub{times: make(map[int32]int64)}
}

func (s *syncTimeStub) Get(ctx context.Context, collectionID int32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.times[collectionID], nil
}

func (s *syncTimeStub) Set(ctx context.Context, collectionID int32, syncedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[collectionID] = syncedAt
	return nil
}
