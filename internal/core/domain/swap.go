package domain

import (
	"context"
	"errors"
	"time"

	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
)

var ErrSwapNotFound = errors.New("swap not found")

type SwapStatus int

const (
	// Pending states
	SwapProposed SwapStatus = iota
	SwapLocked
	SwapAnnounced
	SwapCounterLocked

	// Terminal states
	SwapClaimed
	SwapRefunded
)

func (s SwapStatus) String() string {
	switch s {
	case SwapProposed:
		return "proposed"
	case SwapLocked:
		return "locked"
	case SwapAnnounced:
		return "announced"
	case SwapCounterLocked:
		return "counter_locked"
	case SwapClaimed:
		return "claimed"
	case SwapRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

var transitions = map[SwapStatus][]SwapStatus{
	SwapProposed:      {SwapLocked},
	SwapLocked:        {SwapAnnounced},
	SwapAnnounced:     {SwapCounterLocked, SwapRefunded},
	SwapCounterLocked: {SwapClaimed, SwapRefunded},
}

// CanTransition reports whether the lifecycle allows moving from one status to
// the other.
func CanTransition(from, to SwapStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Role int

const (
	// RoleInitiator created the commitment and holds the secret.
	RoleInitiator Role = iota
	// RoleTaker locked the mirrored leg against someone else's intent.
	RoleTaker
)

func (r Role) String() string {
	if r == RoleTaker {
		return "taker"
	}
	return "initiator"
}

// Swap is one identity's view of a swap attempt. Terms are always expressed
// from this identity's side: From is what it locks, To is what it claims.
type Swap struct {
	Id             string
	Role           Role
	CommitmentHash htlc.Hash
	Terms          htlc.Terms

	LockerKey       string
	CounterpartyKey string

	// RefundHeight guards the leg this identity locked.
	RefundHeight uint32
	// CounterRefundHeight guards the counterparty's leg, once known.
	CounterRefundHeight uint32

	Topic    string
	IntentId string

	LockTxId        string
	CounterLockTxId string
	ClaimTxId       string
	RefundTxId      string

	CreatedAt    int64
	UpdatedAt    int64
	Status       SwapStatus
	ErrorMessage string
}

// IsComplete returns true if swap is in a terminal state
func (s *Swap) IsComplete() bool {
	return s.Status == SwapClaimed || s.Status == SwapRefunded
}

// CanRefund returns true if the swap is in a state that admits the refund path
func (s *Swap) CanRefund() bool {
	return CanTransition(s.Status, SwapRefunded)
}

// Locked records the lock of this identity's leg.
func (s *Swap) Locked(txid string) error {
	if err := s.transition(SwapLocked); err != nil {
		return err
	}
	s.LockTxId = txid
	return nil
}

// Announced records the broadcast of the intent.
func (s *Swap) Announced(intentId, topic string) error {
	if err := s.transition(SwapAnnounced); err != nil {
		return err
	}
	s.IntentId = intentId
	s.Topic = topic
	return nil
}

// CounterLocked records the lock of the mirrored leg. For an initiator this is
// observed, for a taker it is its own lock.
func (s *Swap) CounterLocked(txid, counterpartyKey string, refundHeight uint32) error {
	if err := s.transition(SwapCounterLocked); err != nil {
		return err
	}
	s.CounterLockTxId = txid
	if counterpartyKey != "" {
		s.CounterpartyKey = counterpartyKey
	}
	if refundHeight > 0 {
		s.CounterRefundHeight = refundHeight
	}
	return nil
}

// Claimed records the redemption of the counterparty's leg.
func (s *Swap) Claimed(txid string) error {
	if err := s.transition(SwapClaimed); err != nil {
		return err
	}
	s.ClaimTxId = txid
	return nil
}

// Refunded records the recovery of this identity's leg.
func (s *Swap) Refunded(txid string) error {
	if err := s.transition(SwapRefunded); err != nil {
		return err
	}
	s.RefundTxId = txid
	return nil
}

// Failed keeps the status but remembers why the last step did not complete
func (s *Swap) Failed(errorMsg string) {
	s.ErrorMessage = errorMsg
	s.UpdatedAt = time.Now().Unix()
}

func (s *Swap) transition(to SwapStatus) error {
	if !CanTransition(s.Status, to) {
		return htlc.Errorf(
			htlc.ErrIllegalTransition, "swap %s cannot move from %s to %s", s.Id, s.Status, to,
		)
	}
	s.Status = to
	s.ErrorMessage = ""
	s.UpdatedAt = time.Now().Unix()
	return nil
}

// SwapRepository stores the swaps driven by this identity
type SwapRepository interface {
	Add(ctx context.Context, swap Swap) error
	Get(ctx context.Context, id string) (*Swap, error)
	GetAll(ctx context.Context) ([]Swap, error)
	GetByStatus(ctx context.Context, status ...SwapStatus) ([]Swap, error)
	GetByCommitment(ctx context.Context, hash htlc.Hash) ([]Swap, error)
	Update(ctx context.Context, swap Swap) error
	Close()
}
