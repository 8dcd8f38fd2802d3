package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/shopspring/decimal"
)

// Executor is the execution engine a key wallet submits programs to.
type Executor interface {
	Execute(ctx context.Context, executor string, program contract.Program) (string, error)
	Balances(ctx context.Context, account string) (map[string]decimal.Decimal, error)
}

type keyWallet struct {
	privkey  *btcec.PrivateKey
	pubkey   string
	executor Executor
}

// NewKeyWallet returns a single key wallet. Its public key is the x-only form
// of the key, the same used to sign broadcast messages.
func NewKeyWallet(privateKey string, executor Executor) (ports.Wallet, error) {
	buf, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(buf) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(buf))
	}
	if executor == nil {
		return nil, fmt.Errorf("missing executor")
	}

	privkey, pubkey := btcec.PrivKeyFromBytes(buf)
	return &keyWallet{
		privkey:  privkey,
		pubkey:   hex.EncodeToString(schnorr.SerializePubKey(pubkey)),
		executor: executor,
	}, nil
}

func (w *keyWallet) PublicKey(context.Context) (string, error) {
	return w.pubkey, nil
}

// Sign returns a BIP-340 signature of sha256(msg).
func (w *keyWallet) Sign(_ context.Context, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	sig, err := schnorr.Sign(w.privkey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig.Serialize(), nil
}

func (w *keyWallet) Execute(ctx context.Context, program contract.Program) (string, error) {
	return w.executor.Execute(ctx, w.pubkey, program)
}

func (w *keyWallet) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return w.executor.Balances(ctx, w.pubkey)
}

// VerifySignature checks a signature produced by Sign.
func VerifySignature(pubkey string, msg, sig []byte) (bool, error) {
	key, err := hex.DecodeString(pubkey)
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	pk, err := schnorr.ParsePubKey(key)
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	signature, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, fmt.Errorf("invalid signature: %w", err)
	}
	digest := sha256.Sum256(msg)
	return signature.Verify(digest[:], pk), nil
}

// IdentityKey returns the private key of a key wallet in hex, used to sign
// broadcast messages under the wallet's identity.
func IdentityKey(w ports.Wallet) (string, bool) {
	kw, ok := w.(*keyWallet)
	if !ok {
		return "", false
	}
	return hex.EncodeToString(kw.privkey.Serialize()), true
}
