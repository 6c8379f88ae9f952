package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/internal/remote"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/locks"
)

// coordinatorActionStore is the queue surface the coordinator needs.
type coordinatorActionStore interface {
	ListByCollection(ctx context.Context, collectionID int32) ([]models.OfflineAction, error)
	CollectionIDs(ctx context.Context) ([]int32, error)
}

// syncTimeStore records when a collection last completed a sync.
type syncTimeStore interface {
	Get(ctx context.Context, collectionID int32) (int64, error)
	Set(ctx context.Context, collectionID int32, syncedAt int64) error
}

// pageInvalidator drops cached listing pages after an updating sync.
type pageInvalidator interface {
	InvalidatePages(ctx context.Context, collectionID int32)
}

// inflightSync lets concurrent callers for the same collection share one
// running pass instead of starting a second.
type inflightSync struct {
	done   chan struct{}
	result *models.SyncResult
	err    error
}

// Coordinator drives reconciliation passes. It guarantees one pass per
// collection at a time two ways: concurrent callers in this process join the
// in-flight pass and receive its result, and an advisory lock excludes other
// processes, failing fast when held.
type Coordinator struct {
	actions     coordinatorActionStore
	syncTimes   syncTimeStore
	remote      remote.Store
	reconciler  *Reconciler
	locker      locks.Locker
	network     NetworkChecker
	ratings     RatingSyncer
	events      *Dispatcher
	metrics     *MetricsService
	invalidator pageInvalidator
	minInterval time.Duration
	logger      *zap.Logger

	inflight inflightRegistry
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*Coordinator)

// WithRatings wires the out-of-band rating syncer.
func WithRatings(ratings RatingSyncer) CoordinatorOption {
	return func(c *Coordinator) { c.ratings = ratings }
}

// WithNetworkChecker overrides the connectivity check.
func WithNetworkChecker(network NetworkChecker) CoordinatorOption {
	return func(c *Coordinator) { c.network = network }
}

// WithMetrics wires Prometheus instrumentation.
func WithMetrics(metrics *MetricsService) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithPageInvalidator wires listing-cache invalidation after updating syncs.
func WithPageInvalidator(invalidator pageInvalidator) CoordinatorOption {
	return func(c *Coordinator) { c.invalidator = invalidator }
}

// WithMinInterval sets the freshness window for SyncCollectionIfNeeded.
func WithMinInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.minInterval = interval }
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(actions coordinatorActionStore, syncTimes syncTimeStore, store remote.Store, reconciler *Reconciler, locker locks.Locker, events *Dispatcher, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = locks.NewMemoryLocker()
	}
	if events == nil {
		events = NewDispatcher()
	}
	c := &Coordinator{
		actions:     actions,
		syncTimes:   syncTimes,
		remote:      store,
		reconciler:  reconciler,
		locker:      locker,
		network:     AlwaysOnline,
		ratings:     NoopRatings{},
		events:      events,
		minInterval: 5 * time.Minute,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SyncCollection reconciles one collection's queue now. Concurrent calls for
// the same collection join the in-flight pass and share its result.
func (c *Coordinator) SyncCollection(ctx context.Context, collectionID int32) (*models.SyncResult, error) {
	run, joined := c.inflight.join(collectionID)
	if joined {
		select {
		case <-run.done:
			return run.result, run.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result, err := c.runSync(ctx, collectionID)
	run.result, run.err = result, err
	c.inflight.finish(collectionID, run)
	return result, err
}

// SyncCollectionIfNeeded reconciles only when the last completed pass is
// older than the freshness window. A nil result means no sync was due.
func (c *Coordinator) SyncCollectionIfNeeded(ctx context.Context, collectionID int32) (*models.SyncResult, error) {
	last, err := c.syncTimes.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if time.Since(time.UnixMilli(last)) < c.minInterval {
		return nil, nil
	}
	return c.SyncCollection(ctx, collectionID)
}

// SyncAll reconciles every collection with pending data, then the offline
// ratings. Failures in one collection do not stop the others.
func (c *Coordinator) SyncAll(ctx context.Context, force bool) (*models.SyncResult, error) {
	ids, err := c.actions.CollectionIDs(ctx)
	if err != nil {
		return nil, err
	}

	total := &models.SyncResult{}
	for _, id := range ids {
		var result *models.SyncResult
		if force {
			result, err = c.SyncCollection(ctx, id)
		} else {
			result, err = c.SyncCollectionIfNeeded(ctx, id)
		}
		if err != nil {
			if appErrors.IsBlocked(err) {
				c.logger.Debug("collection sync blocked", zap.Int32("collection_id", id))
				continue
			}
			c.logger.Warn("collection sync failed", zap.Int32("collection_id", id), zap.Error(err))
			continue
		}
		if result != nil {
			total.Updated = total.Updated || result.Updated
			total.Warnings = append(total.Warnings, result.Warnings...)
		}
	}

	if ratings, err := c.ratings.SyncRatings(ctx, force); err != nil {
		c.logger.Warn("rating sync failed", zap.Error(err))
	} else if ratings != nil {
		total.Updated = total.Updated || ratings.Updated
		total.Warnings = append(total.Warnings, ratings.Warnings...)
	}

	return total, nil
}

func (c *Coordinator) runSync(ctx context.Context, collectionID int32) (*models.SyncResult, error) {
	started := time.Now()
	result, err := c.runSyncLocked(ctx, collectionID)
	c.metrics.ObserveRun(runResult(err), time.Since(started))
	return result, err
}

func (c *Coordinator) runSyncLocked(ctx context.Context, collectionID int32) (*models.SyncResult, error) {
	lockName := locks.CollectionLockName(collectionID)
	acquired, err := c.locker.Acquire(ctx, lockName)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, appErrors.ErrSyncBlocked
	}
	defer func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), lockName); err != nil {
			c.logger.Warn("release sync lock failed", zap.String("lock", lockName), zap.Error(err))
		}
	}()

	actions, err := c.actions.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	c.metrics.SetQueueDepth(strconv.FormatInt(int64(collectionID), 10), len(actions))

	// An empty queue needs no network at all.
	result := &models.SyncResult{}
	if len(actions) == 0 {
		if err := c.syncTimes.Set(ctx, collectionID, time.Now().UnixMilli()); err != nil {
			return nil, err
		}
		return result, nil
	}

	if !c.network.Online() {
		return nil, appErrors.ErrOffline
	}

	collection, err := c.remote.FetchCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	byRecord := make(map[int64][]models.OfflineAction)
	order := make([]int64, 0, len(byRecord))
	for _, action := range actions {
		if _, seen := byRecord[action.RecordID]; !seen {
			order = append(order, action.RecordID)
		}
		byRecord[action.RecordID] = append(byRecord[action.RecordID], action)
	}

	var connectivityErr error
	for _, recordID := range order {
		outcome, err := c.reconciler.SyncRecord(ctx, collection, recordID, byRecord[recordID])
		c.metrics.ObserveRecord(string(outcome.State))
		result.Warnings = append(result.Warnings, outcome.Warnings...)

		if err != nil {
			// Connectivity aborts only this record; its queued rows survive
			// for the next attempt while the remaining records still run.
			if connectivityErr == nil {
				connectivityErr = err
			}
			continue
		}

		result.Updated = true
		c.events.RecordChanged(models.RecordChanged{
			CollectionID: collectionID,
			RecordID:     outcome.RecordID,
			Deleted:      outcome.Deleted,
		})
		c.events.AutoSynced(models.AutoSynced{
			CollectionID:    collectionID,
			RecordID:        outcome.RecordID,
			OfflineRecordID: outcome.OfflineRecordID,
			Deleted:         outcome.Deleted,
			Warnings:        outcome.Warnings,
		})
	}

	if result.Updated && c.invalidator != nil {
		c.invalidator.InvalidatePages(ctx, collectionID)
	}
	if connectivityErr != nil {
		return result, connectivityErr
	}

	if err := c.syncTimes.Set(ctx, collectionID, time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	return result, nil
}

func runResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case appErrors.IsBlocked(err):
		return "blocked"
	case appErrors.IsConnectivity(err):
		return "offline"
	default:
		return "error"
	}
}

// inflightRegistry is the per-collection single-flight table.
type inflightRegistry struct {
	mu   sync.Mutex
	runs map[int32]*inflightSync
}

// join returns the collection's in-flight pass. joined reports whether an
// existing pass was found; otherwise the caller owns the returned run and
// must finish it.
func (r *inflightRegistry) join(collectionID int32) (*inflightSync, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[collectionID]; ok {
		return run, true
	}
	run := &inflightSync{done: make(chan struct{})}
	if r.runs == nil {
		r.runs = make(map[int32]*inflightSync)
	}
	r.runs[collectionID] = run
	return run, false
}

// finish publishes the result and wakes every joiner.
func (r *inflightRegistry) finish(collectionID int32, run *inflightSync) {
	r.mu.Lock()
	delete(r.runs, collectionID)
	r.mu.Unlock()
	close(run.done)
}
