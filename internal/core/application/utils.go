package application

import (
	"fmt"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
)

func sameTerms(a, b htlc.Terms) bool {
	return a.FromToken == b.FromToken && a.ToToken == b.ToToken &&
		a.FromAmount.Equal(b.FromAmount) && a.ToAmount.Equal(b.ToAmount)
}

// matchCounterLock checks that a lock observed for the commitment of an
// initiator's swap pays at least what was asked and expires before the
// initiator's own leg.
func matchCounterLock(swap domain.Swap, record htlc.LockRecord, identity string) error {
	if record.CommitmentHash != swap.CommitmentHash {
		return fmt.Errorf("commitment mismatch")
	}
	if record.Recipient != "" && record.Recipient != identity {
		return fmt.Errorf("lock pays %s", record.Recipient)
	}
	if record.Terms.FromToken != swap.Terms.ToToken || record.Terms.ToToken != swap.Terms.FromToken {
		return fmt.Errorf("pair mismatch: %s/%s", record.Terms.FromToken, record.Terms.ToToken)
	}
	if record.Terms.FromAmount.LessThan(swap.Terms.ToAmount) {
		return fmt.Errorf("locked %s, expected %s", record.Terms.FromAmount, swap.Terms.ToAmount)
	}
	if record.RefundHeight >= swap.RefundHeight {
		return fmt.Errorf(
			"counter lock refundable at %d, not before %d", record.RefundHeight, swap.RefundHeight,
		)
	}
	return nil
}
