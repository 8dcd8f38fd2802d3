package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// NIP-06 derivation path m/44'/1237'/0'/0/0.
var identityPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 1237,
	bip32.FirstHardenedChild,
	0,
	0,
}

func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func IsValidMnemonic(mnemonic string) error {
	if len(strings.Fields(mnemonic)) != 12 {
		return fmt.Errorf("mnemonic must have 12 words")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("invalid mnemonic")
	}
	return nil
}

// PrivateKeyFromMnemonic derives the hex encoded identity key of a mnemonic.
func PrivateKeyFromMnemonic(mnemonic string) (string, error) {
	if err := IsValidMnemonic(mnemonic); err != nil {
		return "", err
	}

	seed := bip39.NewSeed(mnemonic, "")
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return "", err
	}
	for _, index := range identityPath {
		if key, err = key.NewChildKey(index); err != nil {
			return "", err
		}
	}

	// go-bip32 does not pad private keys with leading zeros.
	buf := make([]byte, 32)
	copy(buf[32-len(key.Key):], key.Key)
	return hex.EncodeToString(buf), nil
}
