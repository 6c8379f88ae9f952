package service

import (
	"fmt"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

// StagedFileSource lists locally staged attachments for one field of one
// record. Lookups are read-only; projection never writes.
type StagedFileSource interface {
	List(collectionID int32, recordID int64, fieldID int32) ([]storage.StagedFile, error)
}

// Projector computes the record as it should currently be displayed by
// folding pending offline actions onto the base record.
type Projector struct {
	registry *fields.Registry
	staged   StagedFileSource
}

// NewProjector constructs a projector. staged may be nil when file-aware
// fields are not in play.
func NewProjector(registry *fields.Registry, staged StagedFileSource) *Projector {
	if registry == nil {
		registry = fields.NewRegistry()
	}
	return &Projector{registry: registry, staged: staged}
}

// Project folds actions in ascending queue order onto a copy of record.
// The input record is never mutated, and projecting the same actions twice
// yields the same result. Unknown action kinds are ignored.
func (p *Projector) Project(record models.Record, collection models.Collection, actions []models.OfflineAction) (models.Record, error) {
	out := record.Clone()
	if out.Contents == nil {
		out.Contents = make(map[int32]models.FieldContent)
	}

	for i := range actions {
		action := &actions[i]
		out.ModifiedAt = action.QueuedAt
		out.HasPendingOffline = true

		switch action.Kind {
		case models.ActionApprove:
			out.Approved = true
		case models.ActionDisapprove:
			out.Approved = false
		case models.ActionDelete:
			out.Deleted = true
		case models.ActionAdd, models.ActionEdit:
			if err := p.applyEdit(&out, collection, action); err != nil {
				return models.Record{}, err
			}
		default:
			// Unknown kinds from newer versions are a no-op, never fatal.
		}
	}

	return out, nil
}

func (p *Projector) applyEdit(record *models.Record, collection models.Collection, action *models.OfflineAction) error {
	record.GroupID = action.GroupID

	mutations, err := action.Fields()
	if err != nil {
		return fmt.Errorf("project record %d: %w", record.ID, err)
	}

	overrides := make(map[int32]map[string]string)
	for _, m := range mutations {
		if overrides[m.FieldID] == nil {
			overrides[m.FieldID] = make(map[string]string)
		}
		overrides[m.FieldID][m.Subfield] = m.Value
	}

	for _, field := range collection.Fields {
		handler := p.registry.Handler(field.Type)
		override := fields.Override{Values: overrides[field.ID]}

		if handler.HasFiles() && p.staged != nil {
			stagedFiles, err := p.staged.List(action.CollectionID, record.ID, field.ID)
			if err != nil {
				return fmt.Errorf("resolve staged files for field %d: %w", field.ID, err)
			}
			for _, f := range stagedFiles {
				override.Files = append(override.Files, models.FileRef{Name: f.Name, URL: f.Path, Offline: true})
			}
		}

		content := handler.OverrideContent(field, record.Contents[field.ID], override)
		content.FieldID = field.ID
		record.Contents[field.ID] = content
	}

	return nil
}
