package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// StatusTracker keeps the sync_status rows in step with the orchestrators
type StatusTracker struct {
	repo   store.Repository[models.SyncStatus]
	now    func() time.Time
	logger *zap.Logger
}

// NewStatusTracker creates a tracker over repo
func NewStatusTracker(repo store.Repository[models.SyncStatus], logger *zap.Logger) *StatusTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusTracker{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func byService(service models.Service) store.Conditions {
	return store.Conditions{"service": string(service)}
}

// Init makes sure every service has a row and clears in_progress flags left
// behind by a process that died mid-pass.
func (t *StatusTracker) Init(ctx context.Context, services []models.Service) error {
	for _, service := range services {
		_, err := t.repo.FindOne(ctx, byService(service))
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load sync status for %s: %w", service, err)
		}
		if _, err := t.repo.Create(ctx, models.SyncStatus{Service: string(service)}); err != nil {
			return fmt.Errorf("failed to create sync status for %s: %w", service, err)
		}
	}

	reset, err := t.repo.Update(ctx, store.Fields{"in_progress": false}, store.Conditions{"in_progress": true})
	if err != nil {
		return fmt.Errorf("failed to reset stale sync status: %w", err)
	}
	if reset > 0 {
		t.logger.Warn("Reset stale in-progress sync status", zap.Int64("count", reset))
	}
	return nil
}

// MarkStarted flags service as in progress
func (t *StatusTracker) MarkStarted(ctx context.Context, service models.Service) error {
	n, err := t.repo.Update(ctx, store.Fields{"in_progress": true}, byService(service))
	if err != nil {
		return fmt.Errorf("failed to mark %s started: %w", service, err)
	}
	if n == 0 {
		if _, err := t.repo.Create(ctx, models.SyncStatus{Service: string(service), InProgress: true}); err != nil {
			return fmt.Errorf("failed to mark %s started: %w", service, err)
		}
	}
	return nil
}

// MarkSucceeded clears the in-progress flag and any previous error
func (t *StatusTracker) MarkSucceeded(ctx context.Context, service models.Service) error {
	_, err := t.repo.Update(ctx, store.Fields{
		"in_progress":   false,
		"last_sync_at":  t.now(),
		"error_message": nil,
	}, byService(service))
	if err != nil {
		return fmt.Errorf("failed to mark %s succeeded: %w", service, err)
	}
	return nil
}

// MarkFailed clears the in-progress flag and records cause. last_sync_at
// keeps pointing at the last successful pass.
func (t *StatusTracker) MarkFailed(ctx context.Context, service models.Service, cause error) error {
	_, err := t.repo.Update(ctx, store.Fields{
		"in_progress":   false,
		"error_message": cause.Error(),
	}, byService(service))
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", service, err)
	}
	return nil
}

// Get returns the status row of one service
func (t *StatusTracker) Get(ctx context.Context, service models.Service) (models.SyncStatus, error) {
	return t.repo.FindOne(ctx, byService(service))
}

// List returns every status row ordered by service
func (t *StatusTracker) List(ctx context.Context) ([]models.SyncStatus, error) {
	return t.repo.FindMany(ctx, nil, &store.OrderBy{Column: "service"})
}
