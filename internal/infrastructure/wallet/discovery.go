package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/utils"
	log "github.com/sirupsen/logrus"
)

// SeedSource returns the mnemonic of the identity, or an empty string when
// none is available yet.
type SeedSource func(ctx context.Context) (string, error)

// StaticSeed returns a source that always yields mnemonic.
func StaticSeed(mnemonic string) SeedSource {
	return func(context.Context) (string, error) {
		return mnemonic, nil
	}
}

// FileSeed reads the mnemonic from path, reporting none while the file does
// not exist.
func FileSeed(path string) SeedSource {
	return func(context.Context) (string, error) {
		buf, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", nil
			}
			return "", err
		}
		return strings.TrimSpace(string(buf)), nil
	}
}

type discovery struct {
	sources  []SeedSource
	executor Executor
}

// NewDiscovery returns a discovery that builds a key wallet from the first
// source yielding a mnemonic.
func NewDiscovery(executor Executor, sources ...SeedSource) ports.WalletDiscovery {
	return &discovery{sources: sources, executor: executor}
}

func (d *discovery) TryAcquire(ctx context.Context) (ports.Wallet, error) {
	for _, source := range d.sources {
		mnemonic, err := source(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ports.ErrWalletUnavailable, err)
		}
		if mnemonic == "" {
			continue
		}
		key, err := utils.PrivateKeyFromMnemonic(mnemonic)
		if err != nil {
			return nil, err
		}
		return NewKeyWallet(key, d.executor)
	}
	return nil, ports.ErrWalletUnavailable
}

// Acquire polls discovery until a wallet shows up or attempts run out.
func Acquire(
	ctx context.Context, d ports.WalletDiscovery, interval time.Duration, attempts int,
) (ports.Wallet, error) {
	var wallet ports.Wallet
	err := utils.RetryWithBackoff(ctx, utils.Backoff{
		Interval:    interval,
		MaxAttempts: attempts,
	}, func(ctx context.Context) (bool, error) {
		w, err := d.TryAcquire(ctx)
		if err != nil {
			if errors.Is(err, ports.ErrWalletUnavailable) {
				log.WithError(err).Debug("wallet not available yet")
				return false, nil
			}
			return false, err
		}
		wallet = w
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire wallet: %w", err)
	}
	return wallet, nil
}
