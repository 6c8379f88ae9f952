// Package remote talks to the authoritative site. Every operation
// distinguishes a well-formed rejection (the site processed the request and
// refused it, safe to discard) from a connectivity failure (retry later,
// never discard).
package remote

import (
	"context"

	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

// PageQuery selects a listing or search page.
type PageQuery struct {
	GroupID  int32
	Page     int
	PerPage  int
	Search   string
	Advanced bool
}

// Page is one remote page of records.
type Page struct {
	Records    []models.Record
	TotalCount int64
	MaxCount   int64
}

// Store is the remote operation surface the engine consumes. Transport and
// auth are this package's concern; callers only see classified errors.
type Store interface {
	FetchCollection(ctx context.Context, collectionID int32) (models.Collection, error)
	FetchRecord(ctx context.Context, collectionID int32, recordID int64) (models.Record, error)
	FetchPage(ctx context.Context, collectionID int32, q PageQuery) (Page, error)
	SearchPage(ctx context.Context, collectionID int32, q PageQuery) (Page, error)
	SubmitAdd(ctx context.Context, collectionID int32, fields []models.FieldMutation, groupID int32) (int64, error)
	SubmitEdit(ctx context.Context, recordID int64, fields []models.FieldMutation) error
	SubmitDelete(ctx context.Context, recordID int64) error
	SubmitApprove(ctx context.Context, recordID int64, approve bool) error
	UploadFile(ctx context.Context, collectionID int32, recordID int64, fieldID int32, file storage.StagedFile) (models.FileRef, error)
}
