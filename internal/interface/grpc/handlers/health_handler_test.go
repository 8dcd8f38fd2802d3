package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/chain/memchain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/db"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/relay"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/wallet"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

type brokenChain struct{}

func (brokenChain) GetBlockHeight(context.Context) (uint32, error) {
	return 0, fmt.Errorf("connection refused")
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, domain.OutboundMessage) (string, error) {
	return "", nil
}
func (nopBroadcaster) Subscribe(context.Context, string) (<-chan domain.InboundMessage, error) {
	return make(chan domain.InboundMessage), nil
}
func (nopBroadcaster) Close() {}

type nopScheduler struct{}

func (nopScheduler) Start() {}
func (nopScheduler) Stop()  {}

func (nopScheduler) ScheduleAfterHeight(string, uint32, func()) error { return nil }
func (nopScheduler) Cancel(string)                                    {}
func (nopScheduler) Every(time.Duration, func()) error                { return nil }
func (nopScheduler) Pending() int                                     { return 0 }

func newAppService(t *testing.T, chain *memchain.Chain) *application.Service {
	t.Helper()
	w, err := wallet.NewKeyWallet(nostr.GeneratePrivateKey(), chain)
	require.NoError(t, err)

	repoManager, err := db.NewService(db.ServiceConfig{DbType: "badger", DbConfig: []any{"", nil}})
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	svc, err := application.NewService(
		context.Background(), application.BuildInfo{}, application.Config{}, w,
		relay.NewVerifier(), nopBroadcaster{}, chain, chain, nopScheduler{}, repoManager, nil,
	)
	require.NoError(t, err)
	return svc
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		svc    func(t *testing.T) *application.Service
		status grpchealth.HealthCheckResponse_ServingStatus
	}{
		{
			name:   "service not initialized",
			svc:    func(*testing.T) *application.Service { return nil },
			status: grpchealth.HealthCheckResponse_NOT_SERVING,
		},
		{
			name: "chain unreachable",
			svc: func(t *testing.T) *application.Service {
				return newAppService(t, memchain.New(memchain.WithHeightSource(brokenChain{})))
			},
			status: grpchealth.HealthCheckResponse_NOT_SERVING,
		},
		{
			name: "ready",
			svc: func(t *testing.T) *application.Service {
				return newAppService(t, memchain.New(memchain.WithHeight(1)))
			},
			status: grpchealth.HealthCheckResponse_SERVING,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &healthHandler{svc: tt.svc(t), watchInterval: watchInterval}

			resp, err := handler.Check(context.Background(), &grpchealth.HealthCheckRequest{})
			require.NoError(t, err)
			require.NotNil(t, resp)
			require.Equal(t, tt.status, resp.Status)
		})
	}
}

type watchStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent chan grpchealth.HealthCheckResponse_ServingStatus
}

func (s *watchStream) Context() context.Context {
	return s.ctx
}

func (s *watchStream) Send(resp *grpchealth.HealthCheckResponse) error {
	s.sent <- resp.Status
	return nil
}

func TestHealthCheckWatch(t *testing.T) {
	chain := memchain.New(memchain.WithHeight(1))
	handler := &healthHandler{svc: newAppService(t, chain), watchInterval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	stream := &watchStream{
		ctx:  ctx,
		sent: make(chan grpchealth.HealthCheckResponse_ServingStatus, 10),
	}

	done := make(chan error, 1)
	go func() {
		done <- handler.Watch(&grpchealth.HealthCheckRequest{}, stream)
	}()

	select {
	case status := <-stream.sent:
		require.Equal(t, grpchealth.HealthCheckResponse_SERVING, status)
	case <-time.After(time.Second):
		t.Fatal("no status sent")
	}

	// Unchanged status is not sent again.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, stream.sent)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not return")
	}
}
