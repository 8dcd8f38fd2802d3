package ports

import (
	"context"
	"errors"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/shopspring/decimal"
)

var ErrWalletUnavailable = errors.New("wallet unavailable")

// Wallet is the signing wallet of one identity.
//
// Execute returns an error matching htlc.ErrExecutionRejected when the
// program was refused and nothing happened, or htlc.ErrExecutionAmbiguous
// when the outcome is unknown and funds may be at risk.
type Wallet interface {
	PublicKey(ctx context.Context) (string, error)
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	Execute(ctx context.Context, program contract.Program) (string, error)
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// WalletDiscovery looks for a wallet without blocking. Callers retry on
// ErrWalletUnavailable.
type WalletDiscovery interface {
	TryAcquire(ctx context.Context) (Wallet, error)
}

type SignatureVerifier interface {
	Verify(ctx context.Context, msg domain.InboundMessage) error
}
