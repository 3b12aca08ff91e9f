package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned for credentials that are not 32-byte secp256k1
// private keys in hex.
var ErrInvalidKey = errors.New("keys: invalid private key")

// ErrInvalidAddress is returned for strings that are not 20-byte hex
// addresses.
var ErrInvalidAddress = errors.New("keys: invalid address")

// ParsePrivateKeyHex parses a hex-encoded secp256k1 private key, with or
// without a 0x prefix. The error never echoes the input.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: want 64 hex characters, got %d", ErrInvalidKey, len(raw))
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Address returns the author address controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// ParseAddress parses a 0x-prefixed hex address. Mixed-case input must carry
// a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(s, "0x") {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	a := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && a.Hex() != s {
		return common.Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return a, nil
}
