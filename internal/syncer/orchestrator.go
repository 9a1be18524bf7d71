package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/metrics"
	"github.com/parsascontentcorner/shelfsync/internal/models"
)

// ErrSyncInProgress is returned when a pass is requested while one is running
var ErrSyncInProgress = errors.New("syncer: sync already in progress")

// Runner performs one pass of a source
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) (Summary, error)

// Run calls f
func (f RunnerFunc) Run(ctx context.Context) (Summary, error) {
	return f(ctx)
}

// Observer is told about pass boundaries
type Observer interface {
	SyncStarted(service models.Service)
	SyncFinished(service models.Service, summary Summary, err error)
}

// Orchestrator runs the passes of one source, at most one at a time
type Orchestrator struct {
	service   models.Service
	runner    Runner
	status    *StatusTracker
	observers []Observer
	logger    *zap.Logger

	running atomic.Bool
}

// NewOrchestrator creates the orchestrator of service
func NewOrchestrator(service models.Service, runner Runner, status *StatusTracker, logger *zap.Logger, observers ...Observer) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		service:   service,
		runner:    runner,
		status:    status,
		observers: observers,
		logger:    logger.With(zap.String("service", string(service))),
	}
}

// Service returns the source this orchestrator syncs
func (o *Orchestrator) Service() models.Service {
	return o.service
}

// IsRunning reports whether a pass is in flight
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// RunOnce runs a pass and blocks until it finished. It returns
// ErrSyncInProgress without doing anything when a pass is already running.
func (o *Orchestrator) RunOnce(ctx context.Context) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInProgress
	}
	return o.execute(ctx)
}

// Trigger starts a pass in the background. ctx must outlive the pass.
func (o *Orchestrator) Trigger(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	go func() {
		_, _ = o.execute(ctx)
	}()
	return nil
}

func (o *Orchestrator) execute(ctx context.Context) (summary Summary, err error) {
	defer o.running.Store(false)

	start := time.Now()
	logger := o.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("Sync started")

	metrics.TrackSyncRunning(string(o.service), true)
	defer metrics.TrackSyncRunning(string(o.service), false)

	if o.status != nil {
		if err := o.status.MarkStarted(ctx, o.service); err != nil {
			logger.Error("Failed to record sync start", zap.Error(err))
		}
	}
	for _, obs := range o.observers {
		obs.SyncStarted(o.service)
	}

	summary, err = o.run(ctx)
	duration := time.Since(start)

	// Bookkeeping must land even when ctx was cancelled mid-pass
	finishCtx := context.WithoutCancel(ctx)
	if o.status != nil {
		var statusErr error
		if err != nil {
			statusErr = o.status.MarkFailed(finishCtx, o.service, err)
		} else {
			statusErr = o.status.MarkSucceeded(finishCtx, o.service)
		}
		if statusErr != nil {
			logger.Error("Failed to record sync result", zap.Error(statusErr))
		}
	}

	metrics.RecordSyncPass(string(o.service), duration, err)
	for _, obs := range o.observers {
		obs.SyncFinished(o.service, summary, err)
	}

	fields := []zap.Field{
		zap.Duration("duration", duration),
		zap.Int("collection", summary.Collection),
		zap.Int("wishlist", summary.Wishlist),
		zap.Int("records", summary.Records),
		zap.Int("skipped", summary.Skipped),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	}
	if err != nil {
		logger.Error("Sync failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("Sync completed", fields...)
	}
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context) (summary Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return o.runner.Run(ctx)
}
