package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/chain/memchain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/db"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/relay"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/wallet"
	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/nbd-wtf/go-nostr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testTopic = "bitswap-test"

// hub delivers every published message to the subscribers of its topic.
type hub struct {
	mu   sync.Mutex
	subs map[string][]chan domain.InboundMessage
}

func newHub() *hub {
	return &hub{subs: make(map[string][]chan domain.InboundMessage)}
}

func (h *hub) deliver(msg domain.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
		}
	}
}

type mockBroadcaster struct {
	hub *hub
	sk  string

	mu        sync.Mutex
	failures  int
	published []string
}

// failNext makes the next n publications fail after signing.
func (b *mockBroadcaster) failNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *mockBroadcaster) attempts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

func (b *mockBroadcaster) Publish(_ context.Context, out domain.OutboundMessage) (string, error) {
	msg, err := relay.SignMessage(b.sk, out)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.published = append(b.published, msg.Id)
	fail := b.failures > 0
	if fail {
		b.failures--
	}
	b.mu.Unlock()
	if fail {
		return "", fmt.Errorf("no relay accepted event %s", msg.Id)
	}

	b.hub.deliver(msg)
	return msg.Id, nil
}

func (b *mockBroadcaster) Subscribe(ctx context.Context, topic string) (<-chan domain.InboundMessage, error) {
	ch := make(chan domain.InboundMessage, 256)
	b.hub.mu.Lock()
	b.hub.subs[topic] = append(b.hub.subs[topic], ch)
	b.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.hub.mu.Lock()
		defer b.hub.mu.Unlock()
		subs := b.hub.subs[topic]
		for i, c := range subs {
			if c == ch {
				b.hub.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (b *mockBroadcaster) Close() {}

// mockScheduler keeps tasks until the test fires them.
type mockScheduler struct {
	mu    sync.Mutex
	tasks map[string]scheduledTask
}

type scheduledTask struct {
	height uint32
	task   func()
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{tasks: make(map[string]scheduledTask)}
}

func (s *mockScheduler) Start() {}
func (s *mockScheduler) Stop()  {}

func (s *mockScheduler) ScheduleAfterHeight(id string, height uint32, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = scheduledTask{height, task}
	return nil
}

func (s *mockScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *mockScheduler) Every(time.Duration, func()) error { return nil }

func (s *mockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *mockScheduler) get(id string) (scheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// flakyWallet fails the next executions. A rejected failure leaves the
// chain untouched, a lost one submits the program and then drops the answer.
type flakyWallet struct {
	ports.Wallet

	mu       sync.Mutex
	failures int
	lost     bool
}

func (w *flakyWallet) failNext(n int, lost bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = n
	w.lost = lost
}

func (w *flakyWallet) Execute(ctx context.Context, program contract.Program) (string, error) {
	w.mu.Lock()
	fail, lost := w.failures > 0, w.lost
	if fail {
		w.failures--
	}
	w.mu.Unlock()

	if !fail {
		return w.Wallet.Execute(ctx, program)
	}
	if !lost {
		return "", htlc.Wrap(htlc.ErrExecutionRejected, errors.New("mempool full"))
	}
	if _, err := w.Wallet.Execute(ctx, program); err != nil {
		return "", err
	}
	return "", errors.New("connection reset by peer")
}

type testNode struct {
	svc         *application.Service
	scheduler   *mockScheduler
	broadcaster *mockBroadcaster
	wallet      *flakyWallet
	pubkey      string
}

func newTestNode(
	t *testing.T, h *hub, chain *memchain.Chain, cfg application.Config,
) *testNode {
	t.Helper()
	ctx := context.Background()

	sk := nostr.GeneratePrivateKey()
	w, err := wallet.NewKeyWallet(sk, chain)
	require.NoError(t, err)
	pubkey, err := w.PublicKey(ctx)
	require.NoError(t, err)

	repoManager, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	scheduler := newMockScheduler()
	broadcaster := &mockBroadcaster{hub: h, sk: sk}
	flaky := &flakyWallet{Wallet: w}
	svc, err := application.NewService(
		ctx, application.BuildInfo{}, cfg, flaky, relay.NewVerifier(),
		broadcaster, chain, chain, scheduler, repoManager, nil,
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	return &testNode{
		svc:         svc,
		scheduler:   scheduler,
		broadcaster: broadcaster,
		wallet:      flaky,
		pubkey:      pubkey,
	}
}

func requireBalance(t *testing.T, balances map[string]decimal.Decimal, token string, expected int64) {
	t.Helper()
	got, ok := balances[token]
	if !ok {
		got = decimal.Zero
	}
	require.Truef(t, got.Equal(decimal.NewFromInt(expected)), "%s: got %s, want %d", token, got, expected)
}
