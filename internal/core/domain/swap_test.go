package domain_test

import (
	"testing"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/stretchr/testify/require"
)

func TestSwapLifecycle(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		swap := &domain.Swap{Id: "s1"}
		require.NoError(t, swap.Locked("lock"))
		require.NoError(t, swap.Announced("intent", "bitswap"))
		require.NoError(t, swap.CounterLocked("counter", "bob", 200))
		require.NoError(t, swap.Claimed("claim"))

		require.Equal(t, domain.SwapClaimed, swap.Status)
		require.True(t, swap.IsComplete())
		require.Equal(t, "bob", swap.CounterpartyKey)
		require.Equal(t, uint32(200), swap.CounterRefundHeight)

		err := swap.Locked("again")
		require.ErrorIs(t, err, htlc.ErrIllegalTransition)
		require.Equal(t, htlc.KindState, htlc.KindOf(err))
		require.Equal(t, domain.SwapClaimed, swap.Status)
		require.Equal(t, "lock", swap.LockTxId)
	})

	t.Run("refund", func(t *testing.T) {
		testCases := []struct {
			name   string
			status domain.SwapStatus
			ok     bool
		}{
			{"proposed", domain.SwapProposed, false},
			{"locked", domain.SwapLocked, false},
			{"announced", domain.SwapAnnounced, true},
			{"counter locked", domain.SwapCounterLocked, true},
			{"claimed", domain.SwapClaimed, false},
			{"refunded", domain.SwapRefunded, false},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				swap := &domain.Swap{Id: "s", Status: tc.status}
				require.Equal(t, tc.ok, swap.CanRefund())

				err := swap.Refunded("refund")
				if tc.ok {
					require.NoError(t, err)
					require.Equal(t, domain.SwapRefunded, swap.Status)
					return
				}
				require.ErrorIs(t, err, htlc.ErrIllegalTransition)
				require.Equal(t, tc.status, swap.Status)
			})
		}
	})

	t.Run("no skipping", func(t *testing.T) {
		swap := &domain.Swap{Id: "s"}
		require.Error(t, swap.Announced("intent", "topic"))
		require.Error(t, swap.Claimed("claim"))
		require.Equal(t, domain.SwapProposed, swap.Status)
	})
}
