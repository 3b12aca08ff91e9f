// Package digest derives the 32-byte keccak-256 digests that identify topics
// and bind commitments to their payloads.
//
// The hash is the legacy Keccak-256 used by the ledger, not NIST SHA3-256.
package digest

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"
)

// Size is the byte length of every digest.
const Size = 32

// Hash is a keccak-256 digest.
type Hash [Size]byte

// Zero is the all-zero digest.
var Zero Hash

// Keccak256 hashes the concatenation of parts.
func Keccak256(parts ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// Topic returns the topic identifier for name: keccak-256 of its UTF-8 bytes.
func Topic(name string) Hash {
	return Keccak256([]byte(name))
}

// TopicChecked is Topic for names that may not be valid UTF-8.
func TopicChecked(name string) (Hash, error) {
	if !utf8.ValidString(name) {
		return Hash{}, fmt.Errorf("digest: topic name is not valid UTF-8")
	}
	return Topic(name), nil
}

// Payload returns the payload digest of canonical bytes.
func Payload(canonical []byte) Hash {
	return Keccak256(canonical)
}

// ParseHash decodes 64 hex characters, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 2*Size {
		return h, fmt.Errorf("digest: want %d hex characters, got %d", 2*Size, len(raw))
	}
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return h, fmt.Errorf("digest: %w", err)
	}
	return h, nil
}

// MustParseHash is ParseHash for constants. It panics on malformed input.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Hex renders the digest as 0x-prefixed lowercase hex.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string { return h.Hex() }

// Bytes returns a copy of the digest.
func (h Hash) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool { return h == Zero }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
