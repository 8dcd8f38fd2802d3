package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/chain/memchain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()

	satForTest = htlc.Terms{
		FromToken:  "SAT",
		FromAmount: decimal.NewFromInt(100),
		ToToken:    "TEST",
		ToAmount:   decimal.NewFromInt(5000),
	}

	testConfig = application.Config{
		Topic:       testTopic,
		RefundDelta: 144,
		Tokens:      []string{"SAT", "TEST", "ATOM", "BTC"},
	}
)

type swapFixture struct {
	chain *memchain.Chain
	alice *testNode
	bob   *testNode
}

func newSwapFixture(t *testing.T, cfg application.Config) *swapFixture {
	h := newHub()
	chain := memchain.New(memchain.WithHeight(100))
	alice := newTestNode(t, h, chain, cfg)
	bob := newTestNode(t, h, chain, cfg)

	chain.Fund(alice.pubkey, "SAT", decimal.NewFromInt(100))
	chain.Fund(bob.pubkey, "TEST", decimal.NewFromInt(5000))
	return &swapFixture{chain: chain, alice: alice, bob: bob}
}

// announce runs the initiator side up to the publication of the intent and
// waits for the taker to see it.
func (f *swapFixture) announce(t *testing.T) (*domain.Swap, domain.SwapIntent) {
	t.Helper()

	swap, err := f.alice.svc.Propose(ctx, satForTest, 0)
	require.NoError(t, err)
	require.Equal(t, domain.SwapProposed, swap.Status)
	require.Equal(t, uint32(244), swap.RefundHeight)

	swap, err = f.alice.svc.Lock(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapLocked, swap.Status)
	require.NotEmpty(t, swap.LockTxId)

	swap, err = f.alice.svc.Announce(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapAnnounced, swap.Status)
	require.NotEmpty(t, swap.IntentId)

	var intents []domain.SwapIntent
	require.Eventually(t, func() bool {
		intents = f.bob.svc.Query("SAT", "TEST")
		return len(intents) == 1
	}, 2*time.Second, 10*time.Millisecond)

	intent := intents[0]
	require.Equal(t, swap.IntentId, intent.Id)
	require.Equal(t, swap.CommitmentHash, intent.CommitmentHash)
	require.Equal(t, f.alice.pubkey, intent.ProposerKey)
	return swap, intent
}

func TestSwap(t *testing.T) {
	t.Run("claim", func(t *testing.T) {
		f := newSwapFixture(t, testConfig)
		aliceSwap, intent := f.announce(t)

		_, err := f.alice.svc.Take(ctx, intent.Id, 0)
		require.Error(t, err)

		bobSwap, err := f.bob.svc.Take(ctx, intent.Id, 0)
		require.NoError(t, err)
		require.Equal(t, domain.RoleTaker, bobSwap.Role)
		require.Equal(t, domain.SwapCounterLocked, bobSwap.Status)
		require.Equal(t, uint32(172), bobSwap.RefundHeight)
		require.Equal(t, satForTest.Mirror().FromToken, bobSwap.Terms.FromToken)

		_, err = f.bob.svc.Take(ctx, intent.Id, 0)
		require.ErrorIs(t, err, htlc.ErrIllegalTransition)

		// The taker cannot claim before the initiator reveals the secret.
		_, err = f.bob.svc.Claim(ctx, bobSwap.Id)
		require.ErrorIs(t, err, htlc.ErrSecretNotFound)

		aliceSwap, err = f.alice.svc.ObserveCounterLock(ctx, aliceSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapCounterLocked, aliceSwap.Status)
		require.Equal(t, f.bob.pubkey, aliceSwap.CounterpartyKey)

		aliceSwap, err = f.alice.svc.Claim(ctx, aliceSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapClaimed, aliceSwap.Status)
		require.NotEmpty(t, aliceSwap.ClaimTxId)

		bobSwap, err = f.bob.svc.Claim(ctx, bobSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapClaimed, bobSwap.Status)

		aliceBalances, err := f.alice.svc.Balances(ctx)
		require.NoError(t, err)
		requireBalance(t, aliceBalances, "SAT", 0)
		requireBalance(t, aliceBalances, "TEST", 5000)

		bobBalances, err := f.bob.svc.Balances(ctx)
		require.NoError(t, err)
		requireBalance(t, bobBalances, "SAT", 100)
		requireBalance(t, bobBalances, "TEST", 0)

		// Terminal swaps have no pending refund.
		require.Zero(t, f.alice.scheduler.Pending())
		require.Zero(t, f.bob.scheduler.Pending())

		_, err = f.alice.svc.Refund(ctx, aliceSwap.Id)
		require.ErrorIs(t, err, htlc.ErrIllegalTransition)
	})

	t.Run("auto claim", func(t *testing.T) {
		cfg := testConfig
		cfg.AutoClaim = true
		f := newSwapFixture(t, cfg)
		aliceSwap, intent := f.announce(t)

		bobSwap, err := f.bob.svc.Take(ctx, intent.Id, 0)
		require.NoError(t, err)

		// Nothing revealed yet, the taker waits.
		f.bob.svc.Sync(ctx)
		got, err := f.bob.svc.GetSwap(ctx, bobSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapCounterLocked, got.Status)

		f.alice.svc.Sync(ctx)
		got, err = f.alice.svc.GetSwap(ctx, aliceSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapClaimed, got.Status)

		f.bob.svc.Sync(ctx)
		got, err = f.bob.svc.GetSwap(ctx, bobSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapClaimed, got.Status)
	})

	t.Run("refund", func(t *testing.T) {
		f := newSwapFixture(t, testConfig)
		aliceSwap, _ := f.announce(t)

		task, ok := f.alice.scheduler.get(aliceSwap.Id)
		require.True(t, ok)
		require.Equal(t, aliceSwap.RefundHeight, task.height)

		f.chain.Mine(144)
		_, err := f.alice.svc.Refund(ctx, aliceSwap.Id)
		require.ErrorIs(t, err, htlc.ErrRefundNotYet)

		f.chain.Mine(1)
		task.task()

		got, err := f.alice.svc.GetSwap(ctx, aliceSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapRefunded, got.Status)
		require.NotEmpty(t, got.RefundTxId)

		balances, err := f.alice.svc.Balances(ctx)
		require.NoError(t, err)
		requireBalance(t, balances, "SAT", 100)

		_, err = f.alice.svc.Refund(ctx, aliceSwap.Id)
		require.ErrorIs(t, err, htlc.ErrIllegalTransition)
	})

	t.Run("taker refund", func(t *testing.T) {
		f := newSwapFixture(t, testConfig)
		_, intent := f.announce(t)

		bobSwap, err := f.bob.svc.Take(ctx, intent.Id, 150)
		require.NoError(t, err)
		require.Equal(t, uint32(150), bobSwap.RefundHeight)

		f.chain.Mine(51)
		bobSwap, err = f.bob.svc.Refund(ctx, bobSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.SwapRefunded, bobSwap.Status)

		balances, err := f.bob.svc.Balances(ctx)
		require.NoError(t, err)
		requireBalance(t, balances, "TEST", 5000)
	})
}

func TestProposeInvalid(t *testing.T) {
	f := newSwapFixture(t, testConfig)

	tests := []struct {
		name         string
		terms        htlc.Terms
		refundHeight uint32
		err          error
	}{
		{
			name: "same token",
			terms: htlc.Terms{
				FromToken: "SAT", FromAmount: decimal.NewFromInt(1),
				ToToken: "SAT", ToAmount: decimal.NewFromInt(1),
			},
			err: htlc.ErrSameToken,
		},
		{
			name: "zero amount",
			terms: htlc.Terms{
				FromToken: "SAT", FromAmount: decimal.Zero,
				ToToken: "TEST", ToAmount: decimal.NewFromInt(1),
			},
			err: htlc.ErrNonPositiveAmount,
		},
		{
			name: "unsupported token",
			terms: htlc.Terms{
				FromToken: "DOGE", FromAmount: decimal.NewFromInt(1),
				ToToken: "TEST", ToAmount: decimal.NewFromInt(1),
			},
			err: htlc.ErrInvalidTerms,
		},
		{
			name:         "expired refund height",
			terms:        satForTest,
			refundHeight: 100,
			err:          htlc.ErrRefundHeightExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			swap, err := f.alice.svc.Propose(ctx, tt.terms, tt.refundHeight)
			require.ErrorIs(t, err, tt.err)
			require.Nil(t, swap)
		})
	}
}

func TestLockWithoutFunds(t *testing.T) {
	f := newSwapFixture(t, testConfig)

	terms := satForTest
	terms.FromAmount = decimal.NewFromInt(1000)
	swap, err := f.alice.svc.Propose(ctx, terms, 0)
	require.NoError(t, err)

	_, err = f.alice.svc.Lock(ctx, swap.Id)
	require.ErrorIs(t, err, htlc.ErrExecutionRejected)
	require.True(t, htlc.IsRetryable(err))

	got, err := f.alice.svc.GetSwap(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapProposed, got.Status)
	require.NotEmpty(t, got.ErrorMessage)
}

func TestWatch(t *testing.T) {
	f := newSwapFixture(t, testConfig)
	_, intent := f.announce(t)

	f.bob.svc.StopWatching(testTopic)
	require.Empty(t, f.bob.svc.Query("", ""))

	_, err := f.bob.svc.Take(ctx, intent.Id, 0)
	require.ErrorIs(t, err, application.ErrIntentNotFound)

	// Watching again is idempotent.
	require.NoError(t, f.bob.svc.Watch(ctx, testTopic))
	require.NoError(t, f.bob.svc.Watch(ctx, testTopic))
}

func TestTakeRetry(t *testing.T) {
	tests := []struct {
		name string
		lost bool
		// sync reconciles in the background instead of taking again.
		sync bool
	}{
		{name: "rejected lock"},
		{name: "lost lock", lost: true},
		{name: "lost lock reconciled by sync", lost: true, sync: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSwapFixture(t, testConfig)
			_, intent := f.announce(t)

			f.bob.wallet.failNext(1, tt.lost)
			_, err := f.bob.svc.Take(ctx, intent.Id, 0)
			require.Error(t, err)
			require.Equal(t, tt.lost, htlc.FundsAtRisk(err))
			require.Equal(t, !tt.lost, htlc.IsRetryable(err))

			swaps, err := f.bob.svc.ListSwaps(ctx)
			require.NoError(t, err)
			require.Len(t, swaps, 1)
			pending := swaps[0]
			require.Equal(t, domain.SwapAnnounced, pending.Status)
			require.Empty(t, pending.LockTxId)
			require.NotEmpty(t, pending.ErrorMessage)

			// No refund without a lock on chain.
			require.Zero(t, f.bob.scheduler.Pending())

			var bobSwap *domain.Swap
			if tt.sync {
				f.bob.svc.Sync(ctx)
				bobSwap, err = f.bob.svc.GetSwap(ctx, pending.Id)
			} else {
				bobSwap, err = f.bob.svc.Take(ctx, intent.Id, 0)
			}
			require.NoError(t, err)
			require.Equal(t, pending.Id, bobSwap.Id)
			require.Equal(t, domain.SwapCounterLocked, bobSwap.Status)
			require.NotEmpty(t, bobSwap.LockTxId)
			require.Equal(t, bobSwap.LockTxId, bobSwap.CounterLockTxId)
			require.Equal(t, 1, countLocks(t, f.chain, intent.CommitmentHash, f.bob.pubkey))

			task, ok := f.bob.scheduler.get(bobSwap.Id)
			require.True(t, ok)
			require.Equal(t, bobSwap.RefundHeight, task.height)

			_, err = f.bob.svc.Take(ctx, intent.Id, 0)
			require.ErrorIs(t, err, htlc.ErrIllegalTransition)
		})
	}
}

func TestLockLost(t *testing.T) {
	f := newSwapFixture(t, testConfig)

	swap, err := f.alice.svc.Propose(ctx, satForTest, 0)
	require.NoError(t, err)

	f.alice.wallet.failNext(1, true)
	_, err = f.alice.svc.Lock(ctx, swap.Id)
	require.ErrorIs(t, err, htlc.ErrExecutionAmbiguous)
	require.True(t, htlc.FundsAtRisk(err))
	require.False(t, htlc.IsRetryable(err))

	got, err := f.alice.svc.GetSwap(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapProposed, got.Status)
	require.NotEmpty(t, got.ErrorMessage)
	require.Zero(t, f.alice.scheduler.Pending())

	// The lock did land, locking again must only reconcile.
	got, err = f.alice.svc.Lock(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapLocked, got.Status)
	require.NotEmpty(t, got.LockTxId)
	require.Equal(t, 1, countLocks(t, f.chain, swap.CommitmentHash, f.alice.pubkey))

	programs, err := f.chain.ExecutedPrograms(ctx, swap.CommitmentHash)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	require.Equal(t, programs[0].TxId, got.LockTxId)

	balances, err := f.alice.svc.Balances(ctx)
	require.NoError(t, err)
	requireBalance(t, balances, "SAT", 0)
}

func TestAnnounceRetry(t *testing.T) {
	f := newSwapFixture(t, testConfig)

	swap, err := f.alice.svc.Propose(ctx, satForTest, 0)
	require.NoError(t, err)
	_, err = f.alice.svc.Lock(ctx, swap.Id)
	require.NoError(t, err)

	f.alice.broadcaster.failNext(1)
	_, err = f.alice.svc.Announce(ctx, swap.Id)
	require.ErrorIs(t, err, htlc.ErrPublishFailed)
	require.True(t, htlc.IsRetryable(err))

	got, err := f.alice.svc.GetSwap(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapLocked, got.Status)

	got, err = f.alice.svc.Announce(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapAnnounced, got.Status)

	// Both attempts carry the same message so relays dedupe them.
	attempts := f.alice.broadcaster.attempts()
	require.Len(t, attempts, 2)
	require.Equal(t, attempts[0], attempts[1])
	require.Equal(t, attempts[0], got.IntentId)
}

func TestRefundRetry(t *testing.T) {
	f := newSwapFixture(t, testConfig)
	aliceSwap, _ := f.announce(t)

	task, ok := f.alice.scheduler.get(aliceSwap.Id)
	require.True(t, ok)

	height := f.chain.Mine(145)
	f.alice.wallet.failNext(1, false)
	task.task()

	got, err := f.alice.svc.GetSwap(ctx, aliceSwap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapAnnounced, got.Status)

	// A rejected refund is tried again at the next block.
	retry, ok := f.alice.scheduler.get(aliceSwap.Id)
	require.True(t, ok)
	require.Equal(t, height, retry.height)

	f.chain.Mine(1)
	retry.task()

	got, err = f.alice.svc.GetSwap(ctx, aliceSwap.Id)
	require.NoError(t, err)
	require.Equal(t, domain.SwapRefunded, got.Status)
	require.Zero(t, f.alice.scheduler.Pending())

	// A settled swap is not retried.
	retry.task()
	require.Zero(t, f.alice.scheduler.Pending())
}

func countLocks(t *testing.T, chain *memchain.Chain, hash htlc.Hash, locker string) int {
	t.Helper()
	programs, err := chain.ExecutedPrograms(ctx, hash)
	require.NoError(t, err)

	count := 0
	for _, p := range programs {
		record, err := htlc.ParseLockRecord(p.Program)
		if err == nil && record.Locker == locker {
			count++
		}
	}
	return count
}
