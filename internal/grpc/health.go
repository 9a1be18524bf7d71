// Package grpc exposes per-source sync health over the standard gRPC
// health protocol.
package grpc

import (
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/syncer"
)

// HealthReporter mirrors the outcome of each source's last pass into a
// health server. A source reports UNKNOWN until its first pass finishes.
type HealthReporter struct {
	server *health.Server
	logger *zap.Logger
}

var _ syncer.Observer = (*HealthReporter)(nil)

// NewHealthReporter registers one health entry per service. The overall
// entry ("") is always SERVING.
func NewHealthReporter(services []models.Service, logger *zap.Logger) *HealthReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := health.NewServer()
	s.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, service := range services {
		s.SetServingStatus(string(service), healthpb.HealthCheckResponse_UNKNOWN)
	}
	return &HealthReporter{server: s, logger: logger}
}

// Server returns the underlying health server
func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// SyncStarted is a no-op; health only changes when a pass finishes
func (h *HealthReporter) SyncStarted(models.Service) {}

// SyncFinished marks service SERVING after a successful pass and
// NOT_SERVING after a failed one
func (h *HealthReporter) SyncFinished(service models.Service, _ syncer.Summary, err error) {
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(string(service), status)
	h.logger.Debug("Health status updated",
		zap.String("service", string(service)),
		zap.String("status", status.String()),
	)
}

// Shutdown flips every entry to NOT_SERVING
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
