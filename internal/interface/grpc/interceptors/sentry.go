package interceptors

import (
	"context"

	"github.com/getsentry/sentry-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// unarySentryErrorReporter reports internal errors to Sentry. Client side
// failures and cancellations are not reported.
func unarySentryErrorReporter(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	resp, err := handler(ctx, req)
	if reportable(err) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("method", info.FullMethod)
			scope.SetContext("request", map[string]interface{}{
				"method": info.FullMethod,
			})
			sentry.CaptureException(err)
		})
	}
	return resp, err
}

func streamSentryErrorReporter(
	srv interface{},
	stream grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	err := handler(srv, stream)
	if reportable(err) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("method", info.FullMethod)
			scope.SetContext("stream", map[string]interface{}{
				"method":   info.FullMethod,
				"isClient": info.IsClientStream,
				"isServer": info.IsServerStream,
			})
			sentry.CaptureException(err)
		})
	}
	return err
}

func reportable(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return false
	default:
		return true
	}
}
