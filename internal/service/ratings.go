package service

import (
	"context"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

// RatingSyncer synchronizes offline record ratings out of band. Rating
// storage belongs to another subsystem; the coordinator only triggers it
// and folds its warnings into the sync summary.
type RatingSyncer interface {
	SyncRatings(ctx context.Context, force bool) (*models.SyncResult, error)
}

// RatingChecker reports pending offline ratings so listings can surface
// them next to pending actions.
type RatingChecker interface {
	HasOfflineRatings(ctx context.Context, collectionID int32) (bool, error)
}

// NoopRatings satisfies both interfaces for deployments without ratings.
type NoopRatings struct{}

func (NoopRatings) SyncRatings(context.Context, bool) (*models.SyncResult, error) {
	return &models.SyncResult{}, nil
}

func (NoopRatings) HasOfflineRatings(context.Context, int32) (bool, error) {
	return false, nil
}
