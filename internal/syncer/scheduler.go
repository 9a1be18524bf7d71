package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/models"
)

var (
	// ErrUnknownService is returned when triggering a service that is not configured
	ErrUnknownService = errors.New("syncer: unknown service")
	// ErrSchedulerStopped is returned when triggering after Stop
	ErrSchedulerStopped = errors.New("syncer: scheduler stopped")
)

const defaultPollInterval = 100 * time.Millisecond

// Scheduler fires every orchestrator on a fixed interval
type Scheduler struct {
	orchestrators map[models.Service]*Orchestrator
	order         []models.Service
	interval      time.Duration
	onStartup     bool
	pollInterval  time.Duration
	logger        *zap.Logger

	// mu is held across the stopped check and the orchestrator trigger so
	// Stop never returns while a pass it did not see is starting
	mu      sync.Mutex
	passCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewScheduler creates a scheduler over orchestrators. When onStartup is
// set, Start runs every source once immediately.
func NewScheduler(interval time.Duration, onStartup bool, logger *zap.Logger, orchestrators ...*Orchestrator) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		orchestrators: make(map[models.Service]*Orchestrator, len(orchestrators)),
		interval:      interval,
		onStartup:     onStartup,
		pollInterval:  defaultPollInterval,
		logger:        logger,
		passCtx:       context.Background(),
	}
	for _, o := range orchestrators {
		s.orchestrators[o.Service()] = o
		s.order = append(s.order, o.Service())
	}
	return s
}

// Services returns the configured services in registration order
func (s *Scheduler) Services() []models.Service {
	return append([]models.Service(nil), s.order...)
}

// Orchestrator returns the orchestrator of service
func (s *Scheduler) Orchestrator(service models.Service) (*Orchestrator, bool) {
	o, ok := s.orchestrators[service]
	return o, ok
}

// Running reports which services currently have a pass in flight
func (s *Scheduler) Running() map[models.Service]bool {
	running := make(map[models.Service]bool, len(s.order))
	for _, service := range s.order {
		running[service] = s.orchestrators[service].IsRunning()
	}
	return running
}

// Start launches the timer loop. Passes started by the scheduler are not
// cancelled when ctx ends; use Stop to wait for them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.passCtx = context.WithoutCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.done)

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.interval),
		zap.Bool("on_startup", s.onStartup),
		zap.Int("services", len(s.order)),
	)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.onStartup {
		s.runAll()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll()
		}
	}
}

// runAll starts every source concurrently, skipping busy ones
func (s *Scheduler) runAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	for _, service := range s.order {
		o := s.orchestrators[service]
		if err := o.Trigger(s.passCtx); errors.Is(err, ErrSyncInProgress) {
			s.logger.Debug("Skipping scheduled sync, previous pass still running", zap.String("service", string(service)))
		}
	}
}

// Trigger starts a manual pass of service in the background
func (s *Scheduler) Trigger(service models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	o, ok := s.orchestrators[service]
	if !ok {
		return ErrUnknownService
	}
	return o.Trigger(s.passCtx)
}

// Stop halts the timer, rejects further triggers and waits until no pass
// is running or ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for s.anyRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.logger.Info("Sync scheduler stopped")
	return nil
}

func (s *Scheduler) anyRunning() bool {
	for _, o := range s.orchestrators {
		if o.IsRunning() {
			return true
		}
	}
	return false
}
