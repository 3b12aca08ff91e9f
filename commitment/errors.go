package commitment

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/digest"
)

var (
	// ErrMissingSequence is returned when a record is built without a
	// sequence freshly acquired from the ledger for the signing author.
	ErrMissingSequence = errors.New("commitment: missing sequence")

	// ErrInvalidTransition is returned when a Write step is called out of order.
	ErrInvalidTransition = errors.New("commitment: invalid state transition")

	// ErrMismatch is returned by Verify when a record does not commit to the
	// given topic or payload.
	ErrMismatch = errors.New("commitment: record mismatch")

	// ErrNotCanonical is returned by VerifyCanonical for bytes that are not in
	// canonical form.
	ErrNotCanonical = errors.New("commitment: payload bytes are not canonical")
)

// SequenceError explains why a sequence cannot be used. It matches
// ErrMissingSequence.
type SequenceError struct {
	Author common.Address
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("commitment: missing sequence for %s: %s", e.Author.Hex(), e.Reason)
}

func (e *SequenceError) Is(target error) bool { return target == ErrMissingSequence }

// StateError reports a Write step attempted from the wrong state. It matches
// ErrInvalidTransition.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("commitment: cannot %s in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidTransition }

// MismatchError names the field that failed verification. It matches
// ErrMismatch.
type MismatchError struct {
	Field string
	Want  digest.Hash
	Got   digest.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("commitment: %s mismatch: record has %s, derived %s", e.Field, e.Got, e.Want)
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }
