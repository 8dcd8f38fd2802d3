package htlc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/shopspring/decimal"
)

const (
	lockKeyPrefix = "htlc/"
	escrowPrefix  = "escrow/"
	refundSuffix  = "/refund"

	// CallerAccount is resolved by the executing wallet to its own account.
	CallerAccount = "$caller"
)

// LockKey is where a lock program records the terms of the leg locked by
// locker under hash.
func LockKey(hash Hash, locker string) string {
	return lockKeyPrefix + hash.String() + "/" + locker
}

func RefundKey(hash Hash, locker string) string {
	return LockKey(hash, locker) + refundSuffix
}

// EscrowAccount holds the funds of the leg locked by locker under hash. Both
// legs of a swap share the hash but never the escrow.
func EscrowAccount(hash Hash, locker string) string {
	return escrowPrefix + hash.String() + "/" + locker
}

// ParseEscrowAccount splits an escrow account into its commitment hash and
// locker.
func ParseEscrowAccount(account string) (Hash, string, bool) {
	return splitHashKey(account, escrowPrefix)
}

// ParseLockKey splits a lock or refund key into its commitment hash and
// locker.
func ParseLockKey(key string) (Hash, string, bool) {
	return splitHashKey(strings.TrimSuffix(key, refundSuffix), lockKeyPrefix)
}

func splitHashKey(s, prefix string) (Hash, string, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return Hash{}, "", false
	}
	hashStr, locker, ok := strings.Cut(rest, "/")
	if !ok || locker == "" {
		return Hash{}, "", false
	}
	hash, err := ParseHash(hashStr)
	if err != nil {
		return Hash{}, "", false
	}
	return hash, locker, true
}

// ValidateKey accepts a hex encoded x-only (32 bytes) or compressed (33
// bytes) public key.
func ValidateKey(key string) error {
	b, err := hex.DecodeString(key)
	if err != nil {
		return Errorf(ErrInvalidKey, "invalid hex: %s", err)
	}
	if len(b) != 32 && len(b) != 33 {
		return Errorf(ErrInvalidKey, "unexpected key length %d", len(b))
	}
	return nil
}

type LockParams struct {
	LockerKey string
	// RecipientKey restricts the claim to one party. Empty means anyone
	// holding the preimage.
	RecipientKey   string
	CommitmentHash Hash
	Terms          Terms
	RefundHeight   uint32
	CurrentHeight  uint32
}

func (p LockParams) validate() error {
	if err := ValidateKey(p.LockerKey); err != nil {
		return err
	}
	if p.RecipientKey != "" {
		if err := ValidateKey(p.RecipientKey); err != nil {
			return err
		}
		if p.RecipientKey == p.LockerKey {
			return Errorf(ErrInvalidKey, "recipient must differ from locker")
		}
	}
	if p.CommitmentHash.IsZero() {
		return Errorf(ErrInvalidHash, "missing commitment hash")
	}
	if err := p.Terms.Validate(); err != nil {
		return err
	}
	if p.RefundHeight <= p.CurrentHeight {
		return Errorf(
			ErrRefundHeightExpired, "refund height %d must be above current height %d",
			p.RefundHeight, p.CurrentHeight,
		)
	}
	return nil
}

// LockRecord is stored on chain by a lock program so that anyone can audit
// the terms a leg was locked under.
type LockRecord struct {
	CommitmentHash Hash   `json:"commitmentHash"`
	Terms          Terms  `json:"terms"`
	RefundHeight   uint32 `json:"refundHeight"`
	Locker         string `json:"locker"`
	Recipient      string `json:"recipient,omitempty"`
}

// CompileLock escrows Terms.FromAmount of Terms.FromToken under the
// commitment hash until either a claim reveals the preimage or the refund
// height passes.
func CompileLock(p LockParams) (contract.Program, error) {
	if err := p.validate(); err != nil {
		return contract.Program{}, err
	}

	record, err := json.Marshal(LockRecord{
		CommitmentHash: p.CommitmentHash,
		Terms:          p.Terms,
		RefundHeight:   p.RefundHeight,
		Locker:         p.LockerKey,
		Recipient:      p.RecipientKey,
	})
	if err != nil {
		return contract.Program{}, fmt.Errorf("failed to encode lock record: %w", err)
	}

	token := string(p.Terms.FromToken)
	return contract.NewBuilder().
		Store(LockKey(p.CommitmentHash, p.LockerKey), contract.String(string(record))).
		LockFunds(token, p.Terms.FromAmount).
		AdjustBalance(EscrowAccount(p.CommitmentHash, p.LockerKey), token, p.Terms.FromAmount).
		Return().
		Build(), nil
}

// CompileClaim builds the program that sweeps the leg locked by locker under
// hash to the caller. A secret that does not match still compiles: evaluation
// reports the assertion as failed and nothing is applied.
func CompileClaim(secret []byte, hash Hash, locker string) (contract.Program, error) {
	if len(secret) == 0 {
		return contract.Program{}, Errorf(ErrHashMismatch, "empty preimage")
	}
	if hash.IsZero() {
		return contract.Program{}, Errorf(ErrInvalidHash, "missing commitment hash")
	}
	if err := ValidateKey(locker); err != nil {
		return contract.Program{}, err
	}

	return contract.NewBuilder().
		Push(contract.Bytes(secret)).
		Hash(contract.SHA256).
		Push(contract.Bytes(hash[:])).
		AssertEqual().
		Transfer(EscrowAccount(hash, locker), CallerAccount, "", decimal.Zero).
		Return().
		Build(), nil
}

type RefundParams struct {
	LockerKey      string
	CommitmentHash Hash
	RefundHeight   uint32
	CurrentHeight  uint32
}

// CompileRefund returns the escrow of hash to its locker. It fails unless the
// current height is strictly above the refund height.
func CompileRefund(p RefundParams) (contract.Program, error) {
	if err := ValidateKey(p.LockerKey); err != nil {
		return contract.Program{}, err
	}
	if p.CommitmentHash.IsZero() {
		return contract.Program{}, Errorf(ErrInvalidHash, "missing commitment hash")
	}
	if p.CurrentHeight <= p.RefundHeight {
		return contract.Program{}, Errorf(
			ErrRefundNotYet, "current height %d, refundable above %d",
			p.CurrentHeight, p.RefundHeight,
		)
	}

	return contract.NewBuilder().
		Store(RefundKey(p.CommitmentHash, p.LockerKey), contract.String(p.LockerKey)).
		Transfer(EscrowAccount(p.CommitmentHash, p.LockerKey), p.LockerKey, "", decimal.Zero).
		Return().
		Build(), nil
}

// ExtractSecret scans a claim program for a pushed value that hashes to hash.
func ExtractSecret(p contract.Program, hash Hash) (Secret, bool) {
	for _, ins := range p.Instructions() {
		push, ok := ins.(contract.PushValue)
		if !ok || push.Value.Kind() != contract.KindBytes {
			continue
		}
		b := push.Value.AsBytes()
		if len(b) != SecretSize || !Verify(b, hash) {
			continue
		}
		secret, _ := SecretFromBytes(b)
		return secret, true
	}
	return Secret{}, false
}

// ParseLockRecord returns the record stored by a lock program.
func ParseLockRecord(p contract.Program) (*LockRecord, error) {
	for _, ins := range p.Instructions() {
		store, ok := ins.(contract.StoreKeyValue)
		if !ok || !strings.HasPrefix(store.Key, lockKeyPrefix) ||
			strings.HasSuffix(store.Key, refundSuffix) {
			continue
		}
		raw, ok := store.Value.AsString()
		if !ok {
			return nil, Errorf(ErrMalformedMessage, "lock record is not a string")
		}
		var record LockRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, Wrap(ErrMalformedMessage, err)
		}
		if LockKey(record.CommitmentHash, record.Locker) != store.Key {
			return nil, Errorf(ErrMalformedMessage, "lock record key mismatch")
		}
		return &record, nil
	}
	return nil, Errorf(ErrMalformedMessage, "program does not store a lock record")
}
