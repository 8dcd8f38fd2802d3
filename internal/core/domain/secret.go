package domain

import (
	"context"

	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
)

// SecretRecord maps a commitment hash to its preimage for one identity.
type SecretRecord struct {
	Identity  string
	Hash      htlc.Hash
	Secret    htlc.Secret
	CreatedAt int64
}

// SecretRepository persists secrets write-once. Get returns an error matching
// htlc.ErrSecretNotFound when nothing is stored for the hash.
type SecretRepository interface {
	Add(ctx context.Context, record SecretRecord) error
	Get(ctx context.Context, identity string, hash htlc.Hash) (*SecretRecord, error)
	Delete(ctx context.Context, identity string, hash htlc.Hash) error
	Close()
}
