// Package ledger defines the boundary between the commitment pipeline and the
// ledger that accepts commitments: sequence reads, signed submission, receipt
// tracking and event queries, plus the errors those operations surface.
package ledger

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
)

// TxParams and Handle are shared with the commitment builder.
type (
	TxParams = commitment.TxParams
	Handle   = commitment.Handle
)

// NonceReader returns an author's current sequence number. Any NonceReader
// is a commitment.SequenceSource.
type NonceReader interface {
	AuthorNonce(ctx context.Context, author common.Address) (uint64, error)
}

// Submitter signs and submits built records. Conflicting sequences are
// reported as *ConflictError.
type Submitter = commitment.Submitter

// ParamsSource supplies the author's transaction count and fee parameters.
type ParamsSource = commitment.ParamsSource

// FeeReader returns the fee the ledger charges an author per write.
type FeeReader interface {
	WriteFee(ctx context.Context, author common.Address) (*big.Int, error)
}

// ReceiptWaiter waits for a submission to be included.
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, h Handle, confirmations uint64) (*Receipt, error)
}

// EventSource reads ContextWritten events.
type EventSource interface {
	// Head returns the latest block number.
	Head(ctx context.Context) (uint64, error)
	// FilterContexts returns the events in blocks [from, to], optionally
	// restricted to the given topic identifiers, in log order.
	FilterContexts(ctx context.Context, from, to uint64, topics ...digest.Hash) ([]ContextEvent, error)
	// BlockTime returns the timestamp of a block.
	BlockTime(ctx context.Context, block uint64) (time.Time, error)
}

// Ledger is a full ledger client.
type Ledger interface {
	NonceReader
	FeeReader
	ParamsSource
	Submitter
	ReceiptWaiter
	EventSource
}

// ContextEvent is one accepted commitment as reported by the ledger.
type ContextEvent struct {
	Topic       digest.Hash    `json:"topic"`
	Seq         uint64         `json:"seq"`
	Author      common.Address `json:"author"`
	PayloadHash digest.Hash    `json:"payloadHash"`
	URIHash     digest.Hash    `json:"uriHash"`
	MetaHash    digest.Hash    `json:"metaHash"`
	ContextID   digest.Hash    `json:"contextId"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
	LogIndex    uint           `json:"logIndex"`
	Timestamp   int64          `json:"timestamp,omitempty"`
}

// Record returns the commitment the event accepted.
func (e ContextEvent) Record() commitment.Record {
	return commitment.Record{
		Version:       commitment.CurrentVersion,
		TopicID:       e.Topic,
		PayloadDigest: e.PayloadHash,
		ReservedA:     e.URIHash,
		ReservedB:     e.MetaHash,
		Sequence:      e.Seq,
	}
}

// Key identifies the event's log entry.
func (e ContextEvent) Key() string {
	return e.TxHash.Hex() + ":" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

// Receipt describes an included submission.
type Receipt struct {
	TxHash      common.Hash   `json:"txHash"`
	BlockNumber uint64        `json:"blockNumber"`
	GasUsed     uint64        `json:"gasUsed"`
	Event       *ContextEvent `json:"event,omitempty"`
}
