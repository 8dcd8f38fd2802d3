package application

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	log "github.com/sirupsen/logrus"
)

// CommitmentEngine issues secrets for one identity and keeps them in a
// write-once store. Once the entropy source fails the engine refuses to
// issue any further commitment.
type CommitmentEngine struct {
	repo     domain.SecretRepository
	identity string
	entropy  io.Reader

	mu      sync.RWMutex
	fatal   error
	onFatal func(error)
}

func NewCommitmentEngine(
	repo domain.SecretRepository, identity string, entropy io.Reader,
) *CommitmentEngine {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &CommitmentEngine{repo: repo, identity: identity, entropy: entropy}
}

// OnFatal registers a callback invoked once when the entropy source fails.
func (e *CommitmentEngine) OnFatal(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFatal = fn
}

func (e *CommitmentEngine) CreateCommitment(ctx context.Context) (htlc.Commitment, error) {
	if err := e.Err(); err != nil {
		return htlc.Commitment{}, err
	}

	commitment, err := htlc.NewCommitment(e.entropy)
	if err != nil {
		e.halt(err)
		return htlc.Commitment{}, err
	}

	if err := e.repo.Add(ctx, domain.SecretRecord{
		Identity:  e.identity,
		Hash:      commitment.Hash,
		Secret:    commitment.Secret,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return htlc.Commitment{}, fmt.Errorf("failed to store secret: %w", err)
	}

	log.Debugf("created commitment %s", commitment.Hash)
	return commitment, nil
}

func (e *CommitmentEngine) LookupSecret(ctx context.Context, hash htlc.Hash) (htlc.Secret, error) {
	record, err := e.repo.Get(ctx, e.identity, hash)
	if err != nil {
		if errors.Is(err, htlc.ErrSecretNotFound) {
			return htlc.Secret{}, err
		}
		return htlc.Secret{}, fmt.Errorf("failed to get secret: %w", err)
	}
	if !htlc.Verify(record.Secret[:], hash) {
		return htlc.Secret{}, htlc.Errorf(htlc.ErrHashMismatch, "stored secret does not match %s", hash)
	}
	return record.Secret, nil
}

func (e *CommitmentEngine) Verify(secret []byte, hash htlc.Hash) bool {
	return htlc.Verify(secret, hash)
}

// Purge forgets the secret of a swap that reached a terminal state.
func (e *CommitmentEngine) Purge(ctx context.Context, hash htlc.Hash) error {
	if err := e.repo.Delete(ctx, e.identity, hash); err != nil &&
		!errors.Is(err, htlc.ErrSecretNotFound) {
		return fmt.Errorf("failed to purge secret: %w", err)
	}
	return nil
}

// Err returns the fatal error that halted the engine, if any.
func (e *CommitmentEngine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fatal
}

func (e *CommitmentEngine) halt(err error) {
	e.mu.Lock()
	if e.fatal != nil {
		e.mu.Unlock()
		return
	}
	e.fatal = err
	cb := e.onFatal
	e.mu.Unlock()

	log.WithError(err).Error("entropy source failed, no further commitments will be issued")
	if cb != nil {
		cb(err)
	}
}
