package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-collect-sync/internal/fields"
	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
)

func newTestFetcher(queue *queueStub, site *remoteStub) *Fetcher {
	projector := NewProjector(fields.NewBuiltinRegistry(), nil)
	return NewFetcher(queue, site, projector, nil, nil)
}

func TestListPageProjectsPendingActionsOntoRemoteRecords(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)
	site.pages[0] = remote.Page{
		Records: []models.Record{
			{ID: 42, CollectionID: 7, ModifiedAt: 1000, Contents: map[int32]models.FieldContent{1: {FieldID: 1, Content: "old"}}},
			{ID: 43, CollectionID: 7, ModifiedAt: 1000},
		},
		TotalCount: 2,
	}
	queue.put(queuedAction(42, models.ActionEdit, 2000, models.FieldMutation{FieldID: 1, Value: "new"}))

	f := newTestFetcher(queue, site)
	page, err := f.ListPage(context.Background(), collection, ListQuery{})
	require.NoError(t, err)
	require.True(t, page.HasOfflineActions)
	require.Len(t, page.Records, 2)
	require.Equal(t, "new", page.Records[0].Contents[1].Content)
	require.True(t, page.Records[0].HasPendingOffline)
	require.False(t, page.Records[1].HasPendingOffline)
}

func TestListPageSurfacesOfflineRecordsOnFirstPageOnly(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)
	queue.put(queuedAction(-9000, models.ActionAdd, 9000, models.FieldMutation{FieldID: 1, Value: "draft"}))

	f := newTestFetcher(queue, site)

	first, err := f.ListPage(context.Background(), collection, ListQuery{Page: 0})
	require.NoError(t, err)
	require.Len(t, first.OfflineRecords, 1)
	require.Equal(t, int64(-9000), first.OfflineRecords[0].ID)
	require.Equal(t, "draft", first.OfflineRecords[0].Contents[1].Content)
	require.True(t, first.OfflineRecords[0].HasPendingOffline)

	second, err := f.ListPage(context.Background(), collection, ListQuery{Page: 1})
	require.NoError(t, err)
	require.Empty(t, second.OfflineRecords)
}

func TestListPageFiltersOfflineRecordsByGroup(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)

	matching := queuedAction(-9000, models.ActionAdd, 9000)
	matching.GroupID = 5
	other := queuedAction(-9100, models.ActionAdd, 9100)
	other.GroupID = 6
	anyGroup := queuedAction(-9200, models.ActionAdd, 9200)
	queue.put(matching)
	queue.put(other)
	queue.put(anyGroup)

	f := newTestFetcher(queue, site)
	page, err := f.ListPage(context.Background(), collection, ListQuery{GroupID: 5})
	require.NoError(t, err)
	require.Len(t, page.OfflineRecords, 2)
	// Newest placeholders first.
	require.Equal(t, int64(-9200), page.OfflineRecords[0].ID)
	require.Equal(t, int64(-9000), page.OfflineRecords[1].ID)
}

func TestListPageUsesSearchEndpointForQueries(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)
	site.pages[0] = remote.Page{MaxCount: 10}

	f := newTestFetcher(queue, site)
	_, err := f.ListPage(context.Background(), collection, ListQuery{Search: "term"})
	require.NoError(t, err)
	require.Contains(t, site.calls, "search")
	require.NotContains(t, site.calls, "page")
}

func TestFetchSingleSynthesizesOfflineOnlyRecords(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)
	queue.put(queuedAction(-9000, models.ActionAdd, 9000, models.FieldMutation{FieldID: 1, Value: "draft"}))

	f := newTestFetcher(queue, site)
	record, err := f.FetchSingle(context.Background(), collection, -9000)
	require.NoError(t, err)
	require.Equal(t, int64(-9000), record.ID)
	require.Equal(t, "draft", record.Contents[1].Content)
	require.NotContains(t, site.calls, "fetch")
}

func TestFetchSingleProjectsApprovalOntoRemoteRecord(t *testing.T) {
	collection := testCollection()
	queue := newQueueStub()
	site := newRemoteStub(collection)
	site.records[42] = models.Record{ID: 42, CollectionID: 7, Approved: false}
	queue.put(queuedAction(42, models.ActionApprove, 2000))

	f := newTestFetcher(queue, site)
	record, err := f.FetchSingle(context.Background(), collection, 42)
	require.NoError(t, err)
	require.True(t, record.Approved)
	require.True(t, record.HasPendingOffline)
}
