package ports

import (
	"context"

	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
)

type ChainInfo interface {
	GetBlockHeight(ctx context.Context) (uint32, error)
}

// ProgramSource exposes the programs executed by anyone against a commitment
// hash, so that a party can audit its counterparty's lock and read the secret
// revealed by a claim.
type ProgramSource interface {
	ExecutedPrograms(ctx context.Context, hash htlc.Hash) ([]ExecutedProgram, error)
}

type ExecutedProgram struct {
	TxId     string
	Executor string
	Height   uint32
	Program  contract.Program
}
