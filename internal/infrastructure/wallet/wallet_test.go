package wallet_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/chain/memchain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/wallet"
	"github.com/ArkLabsHQ/bitswap/utils"
	"github.com/nbd-wtf/go-nostr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const mnemonic = "reward liar quote property federal print outdoor attitude satoshi favorite special layer"

func TestKeyWallet(t *testing.T) {
	ctx := context.Background()
	chain := memchain.New()

	sk := nostr.GeneratePrivateKey()
	w, err := wallet.NewKeyWallet(sk, chain)
	require.NoError(t, err)

	pubkey, err := w.PublicKey(ctx)
	require.NoError(t, err)
	expected, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	require.Equal(t, expected, pubkey)

	msg := []byte("swap intent")
	sig, err := w.Sign(ctx, msg)
	require.NoError(t, err)

	ok, err := wallet.VerifySignature(pubkey, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = wallet.VerifySignature(pubkey, []byte("other"), sig)
	require.NoError(t, err)
	require.False(t, ok)

	chain.Fund(pubkey, "SAT", decimal.NewFromInt(42))
	balances, err := w.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, "42", balances["SAT"].String())

	key, ok := wallet.IdentityKey(w)
	require.True(t, ok)
	require.Equal(t, sk, key)

	_, err = wallet.NewKeyWallet("zz", chain)
	require.Error(t, err)
}

func TestDiscovery(t *testing.T) {
	ctx := context.Background()
	chain := memchain.New()

	t.Run("unavailable", func(t *testing.T) {
		d := wallet.NewDiscovery(chain, wallet.StaticSeed(""))
		_, err := d.TryAcquire(ctx)
		require.ErrorIs(t, err, ports.ErrWalletUnavailable)

		_, err = wallet.Acquire(ctx, d, time.Millisecond, 3)
		require.ErrorIs(t, err, utils.ErrMaxAttempts)
	})

	t.Run("seed file shows up", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seed")
		d := wallet.NewDiscovery(chain, wallet.StaticSeed(""), wallet.FileSeed(path))

		go func() {
			time.Sleep(20 * time.Millisecond)
			tmp := path + ".tmp"
			// nolint
			os.WriteFile(tmp, []byte(mnemonic+"\n"), 0600)
			// nolint
			os.Rename(tmp, path)
		}()

		w, err := wallet.Acquire(ctx, d, 10*time.Millisecond, 50)
		require.NoError(t, err)

		key, err := utils.PrivateKeyFromMnemonic(mnemonic)
		require.NoError(t, err)
		expected, err := nostr.GetPublicKey(key)
		require.NoError(t, err)

		pubkey, err := w.PublicKey(ctx)
		require.NoError(t, err)
		require.Equal(t, expected, pubkey)
	})

	t.Run("invalid mnemonic", func(t *testing.T) {
		d := wallet.NewDiscovery(chain, wallet.StaticSeed("not a mnemonic"))
		_, err := wallet.Acquire(ctx, d, time.Millisecond, 3)
		require.ErrorContains(t, err, "12 words")
	})
}
