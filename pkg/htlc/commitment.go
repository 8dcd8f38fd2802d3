package htlc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	SecretSize = 32
	HashSize   = sha256.Size
)

type Hash [HashSize]byte

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, Errorf(ErrInvalidHash, "invalid hex: %s", err)
	}
	if len(b) != HashSize {
		return h, Errorf(ErrInvalidHash, "hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Secret is a commitment preimage. Its fmt verbs are redacted so it cannot
// leak through logs; use Bytes to reveal it explicitly.
type Secret [SecretSize]byte

func (s Secret) Bytes() []byte {
	b := make([]byte, SecretSize)
	copy(b, s[:])
	return b
}

func (s Secret) String() string   { return "<redacted>" }
func (s Secret) GoString() string { return "htlc.Secret(<redacted>)" }

func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != SecretSize {
		return s, fmt.Errorf("secret must be %d bytes, got %d", SecretSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

type Commitment struct {
	Secret Secret
	Hash   Hash
}

// NewCommitment draws a fresh secret from r and commits to it.
func NewCommitment(r io.Reader) (Commitment, error) {
	var c Commitment
	if _, err := io.ReadFull(r, c.Secret[:]); err != nil {
		return Commitment{}, Wrap(ErrEntropy, err)
	}
	c.Hash = HashSecret(c.Secret[:])
	return c, nil
}

func HashSecret(secret []byte) Hash {
	return sha256.Sum256(secret)
}

// Verify reports whether sha256(secret) equals hash, in constant time.
func Verify(secret []byte, hash Hash) bool {
	digest := sha256.Sum256(secret)
	return subtle.ConstantTimeCompare(digest[:], hash[:]) == 1
}
