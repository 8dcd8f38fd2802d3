package interceptors

import (
	"context"
	"testing"

	middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryRecovery(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	tests := []struct {
		name    string
		handler grpc.UnaryHandler
		code    codes.Code
	}{
		{
			name:    "ok",
			handler: func(context.Context, interface{}) (interface{}, error) { return "ok", nil },
			code:    codes.OK,
		},
		{
			name: "panic",
			handler: func(context.Context, interface{}) (interface{}, error) {
				panic("boom")
			},
			code: codes.Internal,
		},
		{
			name: "error",
			handler: func(context.Context, interface{}) (interface{}, error) {
				return nil, status.Error(codes.NotFound, "missing")
			},
			code: codes.NotFound,
		},
	}

	interceptor := unaryRecoveryInterceptor(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(context.Background(), nil, info, tt.handler)
			require.Equal(t, tt.code, status.Code(err))

			_, err = unaryLogger(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				if tt.code == codes.Internal {
					return nil, status.Error(codes.Internal, "boom")
				}
				return tt.handler(ctx, req)
			})
			require.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestReportable(t *testing.T) {
	require.False(t, reportable(nil))
	require.False(t, reportable(status.Error(codes.Canceled, "")))
	require.False(t, reportable(status.Error(codes.NotFound, "")))
	require.True(t, reportable(status.Error(codes.Internal, "")))
}

func TestChains(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	panicking := func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	}

	tests := []struct {
		name          string
		sentryEnabled bool
		size          int
	}{
		{"without sentry", false, 2},
		{"with sentry", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unary, stream := chains(tt.sentryEnabled)
			require.Len(t, unary, tt.size)
			require.Len(t, stream, tt.size)
			require.Len(t, ServerOptions(tt.sentryEnabled), 2)

			if tt.sentryEnabled {
				return
			}
			_, err := middleware.ChainUnaryServer(unary...)(context.Background(), nil, info, panicking)
			require.Equal(t, codes.Internal, status.Code(err))
		})
	}
}
