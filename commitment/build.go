package commitment

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/digest"
)

// SequenceSource reads an author's current sequence number from the ledger.
type SequenceSource interface {
	AuthorNonce(ctx context.Context, author common.Address) (uint64, error)
}

// SequenceSourceFunc adapts a function to SequenceSource.
type SequenceSourceFunc func(ctx context.Context, author common.Address) (uint64, error)

func (f SequenceSourceFunc) AuthorNonce(ctx context.Context, author common.Address) (uint64, error) {
	return f(ctx, author)
}

// Sequence is a sequence number read from the ledger for one author. It can
// be spent on a single Build.
type Sequence struct {
	author common.Address
	value  uint64
	spent  atomic.Bool
}

// AcquireSequence reads author's current sequence number from src. Errors
// from src are returned unchanged.
func AcquireSequence(ctx context.Context, src SequenceSource, author common.Address) (*Sequence, error) {
	n, err := src.AuthorNonce(ctx, author)
	if err != nil {
		return nil, err
	}
	return &Sequence{author: author, value: n}, nil
}

// Author is the identity the sequence was read for.
func (s *Sequence) Author() common.Address { return s.author }

// Value is the sequence number.
func (s *Sequence) Value() uint64 { return s.value }

// Spent reports whether the sequence has been used by Build.
func (s *Sequence) Spent() bool { return s.spent.Load() }

// Build assembles a CurrentVersion record. seq must come from
// AcquireSequence for author and must not have been spent; it is spent
// when Build succeeds.
func Build(author common.Address, topicID, payloadDigest digest.Hash, seq *Sequence) (Record, error) {
	if seq == nil {
		return Record{}, &SequenceError{Author: author, Reason: "no sequence was acquired"}
	}
	if seq.author != author {
		return Record{}, &SequenceError{Author: author, Reason: "sequence was acquired for " + seq.author.Hex()}
	}
	if !seq.spent.CompareAndSwap(false, true) {
		return Record{}, &SequenceError{Author: author, Reason: fmt.Sprintf("sequence %d was already used", seq.value)}
	}
	return Record{
		Version:       CurrentVersion,
		TopicID:       topicID,
		PayloadDigest: payloadDigest,
		Sequence:      seq.value,
	}, nil
}

// TxParams are the author's transaction parameters handed to the Submitter
// with a record.
type TxParams struct {
	Author           common.Address
	TransactionCount uint64
	GasPrice         *big.Int
	GasLimit         uint64
	Fee              *big.Int
}

// Handle identifies an accepted submission, typically a transaction hash.
type Handle string

// Submitter signs and submits records.
type Submitter interface {
	Submit(ctx context.Context, rec Record, params TxParams) (Handle, error)
}

// ParamsSource supplies transaction parameters for an author.
type ParamsSource interface {
	TxParams(ctx context.Context, author common.Address) (TxParams, error)
}
