package interceptors

import (
	middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
)

// ServerOptions installs the unary and stream chains on a grpc server.
func ServerOptions(sentryEnabled bool) []grpc.ServerOption {
	unary, stream := chains(sentryEnabled)
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(unary...)),
		grpc.StreamInterceptor(middleware.ChainStreamServer(stream...)),
	}
}

// Recovery runs outermost so a panic in any later interceptor still ends as
// an Internal status.
func chains(sentryEnabled bool) ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	unary := []grpc.UnaryServerInterceptor{unaryRecoveryInterceptor(sentryEnabled), unaryLogger}
	stream := []grpc.StreamServerInterceptor{streamRecoveryInterceptor(sentryEnabled), streamLogger}
	if !sentryEnabled {
		return unary, stream
	}
	return append(unary, unarySentryErrorReporter), append(stream, streamSentryErrorReporter)
}
