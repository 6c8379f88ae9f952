package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
)

func TestProjectLeavesInputUntouched(t *testing.T) {
	collection := testCollection()
	p := NewProjector(fields.NewBuiltinRegistry(), nil)

	record := models.Record{
		ID:       42,
		Contents: map[int32]models.FieldContent{1: {FieldID: 1, Content: "original"}},
	}
	edit := queuedAction(42, models.ActionEdit, 2000, models.FieldMutation{FieldID: 1, Value: "changed"})

	projected, err := p.Project(record, collection, []models.OfflineAction{edit})
	require.NoError(t, err)
	require.Equal(t, "changed", projected.Contents[1].Content)
	require.Equal(t, "original", record.Contents[1].Content)
}

func TestProjectFoldsActionsInQueueOrder(t *testing.T) {
	collection := testCollection()
	p := NewProjector(fields.NewBuiltinRegistry(), nil)

	record := models.Record{ID: 42, Approved: true}
	actions := []models.OfflineAction{
		queuedAction(42, models.ActionEdit, 2000, models.FieldMutation{FieldID: 1, Value: "v2"}),
		queuedAction(42, models.ActionDisapprove, 3000),
	}

	projected, err := p.Project(record, collection, actions)
	require.NoError(t, err)
	require.False(t, projected.Approved)
	require.Equal(t, "v2", projected.Contents[1].Content)
	require.Equal(t, int64(3000), projected.ModifiedAt)
	require.True(t, projected.HasPendingOffline)
}

func TestProjectMarksDeletedRecords(t *testing.T) {
	collection := testCollection()
	p := NewProjector(fields.NewBuiltinRegistry(), nil)

	del := queuedAction(42, models.ActionDelete, 2000)
	projected, err := p.Project(models.Record{ID: 42}, collection, []models.OfflineAction{del})
	require.NoError(t, err)
	require.True(t, projected.Deleted)
}

func TestProjectIgnoresUnknownActionKinds(t *testing.T) {
	collection := testCollection()
	p := NewProjector(fields.NewBuiltinRegistry(), nil)

	unknown := models.OfflineAction{CollectionID: 7, RecordID: 42, Kind: "archive", QueuedAt: 2000, FieldsJSON: "[]"}
	projected, err := p.Project(models.Record{ID: 42}, collection, []models.OfflineAction{unknown})
	require.NoError(t, err)
	require.False(t, projected.Deleted)
	require.True(t, projected.HasPendingOffline)
}

func TestProjectResolvesStagedFilesForFileFields(t *testing.T) {
	collection := testCollection()
	staged := newStagedStub()
	staged.put(7, -9000, 2, "photo.png")
	p := NewProjector(fields.NewBuiltinRegistry(), staged)

	add := queuedAction(-9000, models.ActionAdd, 9000,
		models.FieldMutation{FieldID: 2, Value: `{"offline":true}`})

	projected, err := p.Project(models.Record{ID: -9000}, collection, []models.OfflineAction{add})
	require.NoError(t, err)
	require.Len(t, projected.Contents[2].Files, 1)
	require.Equal(t, "photo.png", projected.Contents[2].Files[0].Name)
	require.True(t, projected.Contents[2].Files[0].Offline)
}
