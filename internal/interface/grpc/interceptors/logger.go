package interceptors

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var grpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bitswap_grpc_requests_total",
	Help: "gRPC calls served, by method and status code.",
}, []string{"method", "code"})

func unaryLogger(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()

	entry := log.WithFields(log.Fields{
		"method":  info.FullMethod,
		"code":    status.Code(err).String(),
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Debug("grpc call failed")
	} else {
		entry.Trace("grpc call served")
	}
	return resp, err
}

func streamLogger(
	srv interface{},
	stream grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	log.WithField("method", info.FullMethod).Trace("grpc stream opened")
	err := handler(srv, stream)
	grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	if err != nil {
		log.WithField("method", info.FullMethod).WithError(err).Debug("grpc stream closed with error")
	}
	return err
}
