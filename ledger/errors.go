package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	transientType = &transient{} //nolint:gochecknoglobals

	// ErrCredentialRequired is returned by any write attempted without a
	// signing credential.
	ErrCredentialRequired = errors.New("ledger: signing credential required")

	// ErrSubmissionConflict is matched by every *ConflictError.
	ErrSubmissionConflict = errors.New("ledger: submission conflict")

	// ErrReceiptFailed is returned for included transactions that reverted.
	ErrReceiptFailed = errors.New("ledger: transaction reverted")
)

// ConflictError reports that the ledger rejected a record because its
// sequence was already consumed. Cause is the ledger's own error, unchanged.
//
// The whole write must be redone from sequence acquisition; resubmitting the
// same record cannot succeed.
type ConflictError struct {
	Author   common.Address
	Sequence uint64
	// Current is the ledger's sequence for Author when the conflict was seen.
	Current uint64
	Cause   error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("ledger: sequence %d for %s already consumed (ledger is at %d)", e.Sequence, e.Author.Hex(), e.Current)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.Cause }

func (e *ConflictError) Is(target error) bool { return target == ErrSubmissionConflict }

// NewTransient marks err as transient: a retry may succeed.
func NewTransient(err error) error {
	return &transient{err: err}
}

// NewTransientf is NewTransient with a formatted error.
func NewTransientf(format string, a ...interface{}) error {
	return &transient{err: fmt.Errorf(format, a...)}
}

// IsTransient reports whether err is, or wraps, a transient error.
func IsTransient(err error) bool {
	return errors.As(err, &transientType)
}

type transient struct {
	err error
}

func (e *transient) Error() string { return e.err.Error() }

func (e *transient) Unwrap() error { return e.err }
