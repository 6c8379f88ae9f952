package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
)

// actionReader is the queue surface the fetcher needs.
type actionReader interface {
	ListByCollection(ctx context.Context, collectionID int32) ([]models.OfflineAction, error)
	ListByRecord(ctx context.Context, collectionID int32, recordID int64) ([]models.OfflineAction, error)
}

// ListQuery selects a listing or search page.
type ListQuery struct {
	GroupID  int32
	Page     int
	PerPage  int
	Search   string
	Advanced bool
}

// EntriesPage is a combined online+offline page of projected records.
type EntriesPage struct {
	Records           []models.Record `json:"records"`
	TotalCount        int64           `json:"totalCount"`
	MaxCount          int64           `json:"maxCount,omitempty"`
	OfflineRecords    []models.Record `json:"offlineRecords"`
	HasOfflineActions bool            `json:"hasOfflineActions"`
	HasOfflineRatings bool            `json:"hasOfflineRatings"`
}

// Fetcher orchestrates combined online+offline listing and single-record
// retrieval, delegating projection to the Projector.
type Fetcher struct {
	actions   actionReader
	remote    remote.Store
	projector *Projector
	ratings   RatingChecker
	cache     *redis.Client
	cacheTTL  time.Duration
	userID    int64
	logger    *zap.Logger
}

// FetcherOption configures the fetcher.
type FetcherOption func(*Fetcher)

// WithPageCache enables read-through caching of remote pages.
func WithPageCache(client *redis.Client, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.cache = client
		f.cacheTTL = ttl
	}
}

// WithUserID attributes synthesized offline records to the given user.
func WithUserID(userID int64) FetcherOption {
	return func(f *Fetcher) { f.userID = userID }
}

// NewFetcher constructs the fetcher.
func NewFetcher(actions actionReader, store remote.Store, projector *Projector, ratings RatingChecker, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ratings == nil {
		ratings = NoopRatings{}
	}
	f := &Fetcher{
		actions:   actions,
		remote:    store,
		projector: projector,
		ratings:   ratings,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// ListPage returns one page of records with pending offline work applied.
// Offline-only records surface on the first non-search page, newest first,
// when the group filter is unset or matches.
func (f *Fetcher) ListPage(ctx context.Context, collection models.Collection, q ListQuery) (*EntriesPage, error) {
	page := &EntriesPage{OfflineRecords: []models.Record{}}

	actions, err := f.actions.ListByCollection(ctx, collection.ID)
	if err != nil {
		return nil, err
	}
	page.HasOfflineActions = len(actions) > 0

	byRecord := make(map[int64][]models.OfflineAction)
	for _, action := range actions {
		byRecord[action.RecordID] = append(byRecord[action.RecordID], action)

		if action.Kind == models.ActionAdd && q.Page == 0 && q.Search == "" &&
			(action.GroupID == 0 || q.GroupID == 0 || action.GroupID == q.GroupID) {
			page.OfflineRecords = append(page.OfflineRecords, models.Record{
				ID:           action.RecordID,
				CollectionID: collection.ID,
				GroupID:      action.GroupID,
				Approved:     collection.DefaultApproved(),
				OwnerUserID:  f.userID,
				CreatedAt:    -action.RecordID,
				ModifiedAt:   -action.RecordID,
				Contents:     map[int32]models.FieldContent{},
			})
		}
	}
	sort.Slice(page.OfflineRecords, func(i, j int) bool {
		return page.OfflineRecords[i].CreatedAt > page.OfflineRecords[j].CreatedAt
	})

	hasRatings, err := f.ratings.HasOfflineRatings(ctx, collection.ID)
	if err != nil {
		f.logger.Warn("offline ratings check failed", zap.Int32("collection_id", collection.ID), zap.Error(err))
	} else {
		page.HasOfflineRatings = hasRatings
	}

	var remotePage remote.Page
	if q.Search != "" || q.Advanced {
		remotePage, err = f.remote.SearchPage(ctx, collection.ID, remote.PageQuery{
			GroupID: q.GroupID, Page: q.Page, PerPage: q.PerPage, Search: q.Search, Advanced: q.Advanced,
		})
	} else {
		remotePage, err = f.fetchPageCached(ctx, collection.ID, q)
	}
	if err != nil {
		return nil, err
	}
	page.TotalCount = remotePage.TotalCount
	page.MaxCount = remotePage.MaxCount

	page.Records = make([]models.Record, 0, len(remotePage.Records))
	for _, record := range remotePage.Records {
		projected, err := f.projector.Project(record, collection, byRecord[record.ID])
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, projected)
	}
	for i, record := range page.OfflineRecords {
		projected, err := f.projector.Project(record, collection, byRecord[record.ID])
		if err != nil {
			return nil, err
		}
		page.OfflineRecords[i] = projected
	}

	return page, nil
}

// FetchSingle returns one record with pending offline work applied. For
// non-positive IDs a bare placeholder is synthesized, so fetching a record
// that exists only offline never fails.
func (f *Fetcher) FetchSingle(ctx context.Context, collection models.Collection, recordID int64) (*models.Record, error) {
	actions, err := f.actions.ListByRecord(ctx, collection.ID, recordID)
	if err != nil {
		return nil, err
	}

	var record models.Record
	if recordID > 0 {
		record, err = f.remote.FetchRecord(ctx, collection.ID, recordID)
		if err != nil {
			return nil, err
		}
	} else {
		record = models.Record{
			ID:           recordID,
			CollectionID: collection.ID,
			Approved:     collection.DefaultApproved(),
			OwnerUserID:  f.userID,
			CreatedAt:    -recordID,
			ModifiedAt:   -recordID,
			Contents:     map[int32]models.FieldContent{},
		}
	}

	projected, err := f.projector.Project(record, collection, actions)
	if err != nil {
		return nil, err
	}
	return &projected, nil
}

// InvalidatePages drops cached remote pages after a sync updated the
// collection. A cold or absent cache is never an error.
func (f *Fetcher) InvalidatePages(ctx context.Context, collectionID int32) {
	if f.cache == nil {
		return
	}
	pattern := fmt.Sprintf("collect-sync:page:%d:*", collectionID)
	iter := f.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := f.cache.Del(ctx, iter.Val()).Err(); err != nil {
			f.logger.Warn("page cache invalidation failed", zap.Error(err))
			return
		}
	}
	if err := iter.Err(); err != nil {
		f.logger.Warn("page cache scan failed", zap.Error(err))
	}
}

func (f *Fetcher) fetchPageCached(ctx context.Context, collectionID int32, q ListQuery) (remote.Page, error) {
	query := remote.PageQuery{GroupID: q.GroupID, Page: q.Page, PerPage: q.PerPage}
	if f.cache == nil {
		return f.remote.FetchPage(ctx, collectionID, query)
	}

	key := fmt.Sprintf("collect-sync:page:%d:%d:%d:%d", collectionID, q.GroupID, q.Page, q.PerPage)
	if raw, err := f.cache.Get(ctx, key).Bytes(); err == nil {
		var cached remote.Page
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	page, err := f.remote.FetchPage(ctx, collectionID, query)
	if err != nil {
		return remote.Page{}, err
	}
	if raw, err := json.Marshal(page); err == nil {
		if err := f.cache.Set(ctx, key, raw, f.cacheTTL).Err(); err != nil {
			f.logger.Warn("page cache write failed", zap.Error(err))
		}
	}
	return page, nil
}
