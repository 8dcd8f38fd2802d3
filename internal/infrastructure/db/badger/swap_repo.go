package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

const (
	swapDir = "swap"
)

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

func (r *swapRepository) Add(ctx context.Context, swap domain.Swap) error {
	if err := r.store.Insert(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("swap %s already exists", swap.Id)
		}
		return fmt.Errorf("failed to add swap: %w", err)
	}
	return nil
}

func (r *swapRepository) Get(ctx context.Context, id string) (*domain.Swap, error) {
	var data swapData
	if err := r.store.Get(id, &data); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSwapNotFound, id)
		}
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return data.toSwap()
}

// GetAll returns every swap, most recent first.
func (r *swapRepository) GetAll(ctx context.Context) ([]domain.Swap, error) {
	return r.find((&badgerhold.Query{}).SortBy("CreatedAt").Reverse())
}

func (r *swapRepository) GetByStatus(
	ctx context.Context, status ...domain.SwapStatus,
) ([]domain.Swap, error) {
	if len(status) == 0 {
		return nil, nil
	}
	values := make([]any, 0, len(status))
	for _, s := range status {
		values = append(values, s)
	}
	return r.find(badgerhold.Where("Status").In(values...).SortBy("CreatedAt"))
}

func (r *swapRepository) GetByCommitment(ctx context.Context, hash htlc.Hash) ([]domain.Swap, error) {
	return r.find(badgerhold.Where("CommitmentHash").Eq(hash.String()))
}

func (r *swapRepository) Update(ctx context.Context, swap domain.Swap) error {
	if err := r.store.Update(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrSwapNotFound, swap.Id)
		}
		return fmt.Errorf("failed to update swap: %w", err)
	}
	return nil
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *swapRepository) find(query *badgerhold.Query) ([]domain.Swap, error) {
	var list []swapData
	if err := r.store.Find(&list, query); err != nil {
		return nil, fmt.Errorf("failed to find swaps: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(list))
	for _, data := range list {
		swap, err := data.toSwap()
		if err != nil {
			return nil, fmt.Errorf("failed to convert data to swap: %w", err)
		}
		swaps = append(swaps, *swap)
	}
	return swaps, nil
}

type swapData struct {
	Id                  string
	Role                domain.Role
	CommitmentHash      string
	FromToken           string
	FromAmount          string
	ToToken             string
	ToAmount            string
	LockerKey           string
	CounterpartyKey     string
	RefundHeight        uint32
	CounterRefundHeight uint32
	Topic               string
	IntentId            string
	LockTxId            string
	CounterLockTxId     string
	ClaimTxId           string
	RefundTxId          string
	CreatedAt           int64
	UpdatedAt           int64
	Status              domain.SwapStatus
	ErrorMessage        string
}

func toSwapData(swap domain.Swap) swapData {
	return swapData{
		Id:                  swap.Id,
		Role:                swap.Role,
		CommitmentHash:      swap.CommitmentHash.String(),
		FromToken:           string(swap.Terms.FromToken),
		FromAmount:          swap.Terms.FromAmount.String(),
		ToToken:             string(swap.Terms.ToToken),
		ToAmount:            swap.Terms.ToAmount.String(),
		LockerKey:           swap.LockerKey,
		CounterpartyKey:     swap.CounterpartyKey,
		RefundHeight:        swap.RefundHeight,
		CounterRefundHeight: swap.CounterRefundHeight,
		Topic:               swap.Topic,
		IntentId:            swap.IntentId,
		LockTxId:            swap.LockTxId,
		CounterLockTxId:     swap.CounterLockTxId,
		ClaimTxId:           swap.ClaimTxId,
		RefundTxId:          swap.RefundTxId,
		CreatedAt:           swap.CreatedAt,
		UpdatedAt:           swap.UpdatedAt,
		Status:              swap.Status,
		ErrorMessage:        swap.ErrorMessage,
	}
}

func (d swapData) toSwap() (*domain.Swap, error) {
	hash, err := htlc.ParseHash(d.CommitmentHash)
	if err != nil {
		return nil, err
	}
	fromAmount, err := decimal.NewFromString(d.FromAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid from amount: %w", err)
	}
	toAmount, err := decimal.NewFromString(d.ToAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid to amount: %w", err)
	}

	return &domain.Swap{
		Id:             d.Id,
		Role:           d.Role,
		CommitmentHash: hash,
		Terms: htlc.Terms{
			FromToken:  htlc.Ticker(d.FromToken),
			FromAmount: fromAmount,
			ToToken:    htlc.Ticker(d.ToToken),
			ToAmount:   toAmount,
		},
		LockerKey:           d.LockerKey,
		CounterpartyKey:     d.CounterpartyKey,
		RefundHeight:        d.RefundHeight,
		CounterRefundHeight: d.CounterRefundHeight,
		Topic:               d.Topic,
		IntentId:            d.IntentId,
		LockTxId:            d.LockTxId,
		CounterLockTxId:     d.CounterLockTxId,
		ClaimTxId:           d.ClaimTxId,
		RefundTxId:          d.RefundTxId,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		Status:              d.Status,
		ErrorMessage:        d.ErrorMessage,
	}, nil
}
