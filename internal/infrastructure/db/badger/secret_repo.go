package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	secretDir = "secret"
)

type secretRepository struct {
	store *badgerhold.Store
}

// NewSecretRepository opens the write-once secret store. When encryptionKey
// is set the store is encrypted at rest.
func NewSecretRepository(
	baseDir string, logger badger.Logger, encryptionKey []byte,
) (domain.SecretRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, secretDir)
	}
	store, err := createDB(dir, logger, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %s", err)
	}
	return &secretRepository{store}, nil
}

func (r *secretRepository) Add(ctx context.Context, record domain.SecretRecord) error {
	key := secretKey(record.Identity, record.Hash)
	data := secretData{
		Identity:  record.Identity,
		Hash:      record.Hash.String(),
		Secret:    record.Secret.Bytes(),
		CreatedAt: record.CreatedAt,
	}
	if err := r.store.Insert(key, data); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("secret for %s already stored", record.Hash)
		}
		return fmt.Errorf("failed to add secret: %w", err)
	}
	return nil
}

func (r *secretRepository) Get(
	ctx context.Context, identity string, hash htlc.Hash,
) (*domain.SecretRecord, error) {
	var data secretData
	if err := r.store.Get(secretKey(identity, hash), &data); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, htlc.Errorf(htlc.ErrSecretNotFound, "no secret for %s", hash)
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	secret, err := htlc.SecretFromBytes(data.Secret)
	if err != nil {
		return nil, err
	}
	return &domain.SecretRecord{
		Identity:  data.Identity,
		Hash:      hash,
		Secret:    secret,
		CreatedAt: data.CreatedAt,
	}, nil
}

func (r *secretRepository) Delete(ctx context.Context, identity string, hash htlc.Hash) error {
	if err := r.store.Delete(secretKey(identity, hash), secretData{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return htlc.Errorf(htlc.ErrSecretNotFound, "no secret for %s", hash)
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

func (r *secretRepository) Close() {
	// nolint:all
	r.store.Close()
}

type secretData struct {
	Identity  string
	Hash      string
	Secret    []byte
	CreatedAt int64
}

func secretKey(identity string, hash htlc.Hash) string {
	return identity + "/" + hash.String()
}
