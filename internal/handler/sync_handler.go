// Package handler exposes the local agent API the shell application talks
// to: record mutations, combined listings, queue inspection, and sync
// triggers.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-collect-sync/internal/dto"
	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/service"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/response"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

type collectionSource interface {
	FetchCollection(ctx context.Context, collectionID int32) (models.Collection, error)
}

type syncService interface {
	SyncCollection(ctx context.Context, collectionID int32) (*models.SyncResult, error)
	SyncAll(ctx context.Context, force bool) (*models.SyncResult, error)
}

type entryService interface {
	ListPage(ctx context.Context, collection models.Collection, q service.ListQuery) (*service.EntriesPage, error)
	FetchSingle(ctx context.Context, collection models.Collection, recordID int64) (*models.Record, error)
}

type mutationService interface {
	BuildMutations(collection models.Collection, input map[int32]fields.FormInput) []models.FieldMutation
	AddRecord(ctx context.Context, collection models.Collection, courseID, groupID int32, mutations []models.FieldMutation) (*service.MutationResult, error)
	EditRecord(ctx context.Context, collection models.Collection, recordID int64, mutations []models.FieldMutation) (*service.MutationResult, error)
	DeleteRecord(ctx context.Context, collection models.Collection, recordID int64) (*service.MutationResult, error)
	SetApproval(ctx context.Context, collection models.Collection, recordID int64, approve bool) (*service.MutationResult, error)
	StageAttachment(collectionID int32, recordID int64, fieldID int32, name string, payload io.Reader) (storage.StagedFile, error)
}

type queueReader interface {
	ListByCollection(ctx context.Context, collectionID int32) ([]models.OfflineAction, error)
}

// SyncHandler wires the agent endpoints to the sync services.
type SyncHandler struct {
	collections collectionSource
	sync        syncService
	entries     entryService
	mutations   mutationService
	queue       queueReader
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(collections collectionSource, sync syncService, entries entryService, mutations mutationService, queue queueReader) *SyncHandler {
	return &SyncHandler{
		collections: collections,
		sync:        sync,
		entries:     entries,
		mutations:   mutations,
		queue:       queue,
	}
}

// Register mounts the agent routes.
func (h *SyncHandler) Register(r gin.IRouter) {
	r.POST("/sync", h.SyncAll)
	collections := r.Group("/collections/:collectionId")
	collections.POST("/sync", h.SyncCollection)
	collections.GET("/queue", h.QueueStatus)
	collections.GET("/records", h.ListRecords)
	collections.GET("/records/:recordId", h.GetRecord)
	collections.POST("/records", h.AddRecord)
	collections.PUT("/records/:recordId", h.EditRecord)
	collections.DELETE("/records/:recordId", h.DeleteRecord)
	collections.POST("/records/:recordId/approval", h.SetApproval)
	collections.POST("/records/:recordId/fields/:fieldId/attachments", h.StageAttachment)
}

// SyncAll reconciles every collection with pending offline data.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	force := c.Query("force") == "true"
	result, err := h.sync.SyncAll(c.Request.Context(), force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SyncCollection reconciles one collection now.
func (h *SyncHandler) SyncCollection(c *gin.Context) {
	collectionID, ok := h.collectionID(c)
	if !ok {
		return
	}
	result, err := h.sync.SyncCollection(c.Request.Context(), collectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// QueueStatus reports a collection's pending offline work.
func (h *SyncHandler) QueueStatus(c *gin.Context) {
	collectionID, ok := h.collectionID(c)
	if !ok {
		return
	}
	actions, err := h.queue.ListByCollection(c.Request.Context(), collectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	records := make(map[int64]struct{})
	for _, action := range actions {
		records[action.RecordID] = struct{}{}
	}
	response.JSON(c, http.StatusOK, dto.QueueStatus{
		CollectionID: collectionID,
		Pending:      len(actions),
		Records:      len(records),
	}, nil)
}

// ListRecords returns one listing page with pending offline work applied.
func (h *SyncHandler) ListRecords(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	var query dto.EntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid listing query"))
		return
	}
	page, err := h.entries.ListPage(c.Request.Context(), collection, service.ListQuery{
		GroupID:  query.GroupID,
		Page:     query.Page,
		PerPage:  query.PerPage,
		Search:   query.Search,
		Advanced: query.Advanced,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page, nil)
}

// GetRecord returns one record with pending offline work applied.
func (h *SyncHandler) GetRecord(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	record, err := h.entries.FetchSingle(c.Request.Context(), collection, recordID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AddRecord creates a record, queuing it when the site is unreachable.
func (h *SyncHandler) AddRecord(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	var req dto.AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	mutations := h.mutations.BuildMutations(collection, formInput(req.Fields))
	result, err := h.mutations.AddRecord(c.Request.Context(), collection, req.CourseID, req.GroupID, mutations)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// EditRecord updates a record, queuing the edit when the site is unreachable.
func (h *SyncHandler) EditRecord(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	var req dto.EditRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	mutations := h.mutations.BuildMutations(collection, formInput(req.Fields))
	result, err := h.mutations.EditRecord(c.Request.Context(), collection, recordID, mutations)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DeleteRecord removes a record, queuing the delete when the site is
// unreachable.
func (h *SyncHandler) DeleteRecord(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	result, err := h.mutations.DeleteRecord(c.Request.Context(), collection, recordID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetApproval approves or disapproves a record.
func (h *SyncHandler) SetApproval(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	var req dto.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	result, err := h.mutations.SetApproval(c.Request.Context(), collection, recordID, *req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StageAttachment stores an uploaded file for a queued add or edit.
func (h *SyncHandler) StageAttachment(c *gin.Context) {
	collectionID, ok := h.collectionID(c)
	if !ok {
		return
	}
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	fieldID, err := strconv.ParseInt(c.Param("fieldId"), 10, 32)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid field id"))
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing file part"))
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer src.Close() //nolint:errcheck

	staged, err := h.mutations.StageAttachment(collectionID, recordID, int32(fieldID), file.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, staged, nil)
}

func (h *SyncHandler) collectionID(c *gin.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("collectionId"), 10, 32)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid collection id"))
		return 0, false
	}
	return int32(id), true
}

func (h *SyncHandler) collection(c *gin.Context) (models.Collection, bool) {
	collectionID, ok := h.collectionID(c)
	if !ok {
		return models.Collection{}, false
	}
	collection, err := h.collections.FetchCollection(c.Request.Context(), collectionID)
	if err != nil {
		response.Error(c, err)
		return models.Collection{}, false
	}
	return collection, true
}

func (h *SyncHandler) recordID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("recordId"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record id"))
		return 0, false
	}
	return id, true
}

func formInput(raw map[int32]dto.FieldInput) map[int32]fields.FormInput {
	input := make(map[int32]fields.FormInput, len(raw))
	for fieldID, values := range raw {
		input[fieldID] = fields.FormInput(values)
	}
	return input
}
