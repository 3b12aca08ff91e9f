// Package commitment assembles commitment records: the topic identifier and
// payload digest of one write, bound to the author's ledger sequence number.
//
// Building is pure. Sequences are borrowed from the ledger through
// AcquireSequence and can be spent on exactly one record. Signing and
// submission belong to a Submitter.
package commitment

import (
	"encoding/binary"
	"fmt"

	"lumen.dev/sdk/digest"
)

// Version names the record layout a commitment was built for. It is carried
// alongside the record and is not part of the wire encoding.
type Version string

const (
	// Version01 records carry zero reserved digests.
	Version01 Version = "0.1"

	// CurrentVersion is the version Build produces.
	CurrentVersion = Version01
)

// WireSize is the length of an encoded record:
// topic(32) | payload digest(32) | reserved A(32) | reserved B(32) | sequence(8).
const WireSize = 4*digest.Size + 8

// Record is an immutable commitment ready for signing.
//
// ReservedA and ReservedB are the ledger's uriHash and metaHash slots. They
// are zero in Version01 and kept as explicit fields so later versions can
// populate them without a layout change.
type Record struct {
	Version       Version     `json:"version"`
	TopicID       digest.Hash `json:"topicId"`
	PayloadDigest digest.Hash `json:"payloadDigest"`
	ReservedA     digest.Hash `json:"reservedA"`
	ReservedB     digest.Hash `json:"reservedB"`
	Sequence      uint64      `json:"sequence"`
}

// MarshalBinary returns the 136-byte wire encoding.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, WireSize)), nil
}

// AppendBinary appends the wire encoding of r to b.
func (r Record) AppendBinary(b []byte) []byte {
	b = append(b, r.TopicID[:]...)
	b = append(b, r.PayloadDigest[:]...)
	b = append(b, r.ReservedA[:]...)
	b = append(b, r.ReservedB[:]...)
	return binary.BigEndian.AppendUint64(b, r.Sequence)
}

// UnmarshalRecord decodes a wire encoded record. The version is
// CurrentVersion since the wire form does not carry one; call Validate to
// check the reserved slots against it.
func UnmarshalRecord(b []byte) (Record, error) {
	var r Record
	if len(b) != WireSize {
		return r, fmt.Errorf("commitment: wire record is %d bytes, want %d", len(b), WireSize)
	}
	r.Version = CurrentVersion
	off := 0
	for _, dst := range []*digest.Hash{&r.TopicID, &r.PayloadDigest, &r.ReservedA, &r.ReservedB} {
		copy(dst[:], b[off:off+digest.Size])
		off += digest.Size
	}
	r.Sequence = binary.BigEndian.Uint64(b[off:])
	return r, nil
}

// ID is the keccak-256 of the wire encoding. Two records share an ID only if
// every field on the wire matches.
func (r Record) ID() digest.Hash {
	return digest.Keccak256(r.AppendBinary(make([]byte, 0, WireSize)))
}

// Validate checks the record against the rules of its version.
func (r Record) Validate() error {
	switch r.Version {
	case Version01:
		if !r.ReservedA.IsZero() || !r.ReservedB.IsZero() {
			return fmt.Errorf("commitment: version %s records must have zero reserved digests", r.Version)
		}
		return nil
	case "":
		return fmt.Errorf("commitment: record has no version")
	default:
		return fmt.Errorf("commitment: unknown record version %q", r.Version)
	}
}
