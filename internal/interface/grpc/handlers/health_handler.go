package handlers

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	log "github.com/sirupsen/logrus"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	checkTimeout  = 2 * time.Second
	watchInterval = 5 * time.Second
)

type healthHandler struct {
	svc           *application.Service
	watchInterval time.Duration
}

func NewHealthHandler(svc *application.Service) grpchealth.HealthServer {
	return &healthHandler{svc: svc, watchInterval: watchInterval}
}

func (h *healthHandler) Check(
	ctx context.Context, _ *grpchealth.HealthCheckRequest,
) (*grpchealth.HealthCheckResponse, error) {
	return &grpchealth.HealthCheckResponse{Status: h.status(ctx)}, nil
}

// Watch sends the serving status right away and then every time it changes,
// until the client goes away.
func (h *healthHandler) Watch(
	_ *grpchealth.HealthCheckRequest, stream grpchealth.Health_WatchServer,
) error {
	ctx := stream.Context()
	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()

	last := grpchealth.HealthCheckResponse_UNKNOWN
	for {
		if status := h.status(ctx); status != last {
			if err := stream.Send(&grpchealth.HealthCheckResponse{Status: status}); err != nil {
				return err
			}
			last = status
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *healthHandler) status(ctx context.Context) grpchealth.HealthCheckResponse_ServingStatus {
	if h.svc == nil {
		log.Debug("health check: service not initialized")
		return grpchealth.HealthCheckResponse_NOT_SERVING
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.svc.Ready(checkCtx); err != nil {
		log.WithError(err).Warn("health check: service not ready")
		return grpchealth.HealthCheckResponse_NOT_SERVING
	}
	return grpchealth.HealthCheckResponse_SERVING
}
