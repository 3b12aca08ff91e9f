// Package memledger is an in-process ledger with the acceptance rules of the
// kernel contract: a write is accepted only when its sequence equals the
// author's current nonce and the attached fee covers the write fee. Every
// accepted write is mined into its own block.
package memledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger"
)

// ErrBadNonce is the cause carried by conflicts raised by this ledger.
var ErrBadNonce = errors.New("memledger: BAD_NONCE")

// ErrInsufficientFee is returned when the attached fee is below the write fee.
var ErrInsufficientFee = errors.New("memledger: insufficient fee")

// ErrUnknownHandle is returned by WaitReceipt for handles it never issued.
var ErrUnknownHandle = errors.New("memledger: unknown transaction")

const gasPerWrite = 60_000

// Option configures a Ledger.
type Option func(l *Ledger)

// WithFee sets the write fee charged to every author.
func WithFee(fee *big.Int) Option {
	return func(l *Ledger) { l.fee = new(big.Int).Set(fee) }
}

// WithClock sets the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithGasPrice sets the gas price reported by TxParams.
func WithGasPrice(p *big.Int) Option {
	return func(l *Ledger) { l.gasPrice = new(big.Int).Set(p) }
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	fee      *big.Int
	gasPrice *big.Int
	now      func() time.Time

	nonces     map[common.Address]uint64
	txCounts   map[common.Address]uint64
	events     []ledger.ContextEvent
	receipts   map[ledger.Handle]*ledger.Receipt
	blockTimes map[uint64]time.Time
	head       uint64
	failNext   error
}

var _ ledger.Ledger = (*Ledger)(nil)

// New returns an empty ledger at block 0 with a zero write fee.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		fee:        new(big.Int),
		gasPrice:   big.NewInt(1_000_000),
		now:        time.Now,
		nonces:     make(map[common.Address]uint64),
		txCounts:   make(map[common.Address]uint64),
		receipts:   make(map[ledger.Handle]*ledger.Receipt),
		blockTimes: map[uint64]time.Time{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.blockTimes[0] = l.now()
	return l
}

// SetNonce forces an author's nonce, simulating writes made elsewhere.
func (l *Ledger) SetNonce(author common.Address, n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonces[author] = n
}

// FailNext makes the next Submit fail with err without touching state.
func (l *Ledger) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Events returns every accepted write in order.
func (l *Ledger) Events() []ledger.ContextEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.ContextEvent(nil), l.events...)
}

// MineEmpty advances the head by n blocks without writes.
func (l *Ledger) MineEmpty(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.mineLocked()
	}
}

func (l *Ledger) mineLocked() uint64 {
	l.head++
	l.blockTimes[l.head] = l.now()
	return l.head
}

func (l *Ledger) AuthorNonce(_ context.Context, author common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[author], nil
}

func (l *Ledger) WriteFee(context.Context, common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.fee), nil
}

func (l *Ledger) TxParams(_ context.Context, author common.Address) (ledger.TxParams, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ledger.TxParams{
		Author:           author,
		TransactionCount: l.txCounts[author],
		GasPrice:         new(big.Int).Set(l.gasPrice),
		GasLimit:         gasPerWrite,
		Fee:              new(big.Int).Set(l.fee),
	}, nil
}

// Submit accepts rec when rec.Sequence equals the author's nonce. A stale or
// future sequence is rejected with a *ledger.ConflictError.
func (l *Ledger) Submit(_ context.Context, rec commitment.Record, params ledger.TxParams) (ledger.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failNext; err != nil {
		l.failNext = nil
		return "", err
	}
	author := params.Author
	if author == (common.Address{}) {
		return "", ledger.ErrCredentialRequired
	}
	if current := l.nonces[author]; rec.Sequence != current {
		return "", &ledger.ConflictError{Author: author, Sequence: rec.Sequence, Current: current, Cause: ErrBadNonce}
	}
	if params.Fee == nil || params.Fee.Cmp(l.fee) < 0 {
		return "", fmt.Errorf("%w: need %s wei", ErrInsufficientFee, l.fee)
	}

	count := l.txCounts[author]
	l.txCounts[author] = count + 1
	l.nonces[author] = rec.Sequence + 1
	block := l.mineLocked()

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], rec.Sequence)
	wire, _ := rec.MarshalBinary()
	var countBytes [8]byte
	binary.BigEndian.PutUint64(countBytes[:], count)

	txHash := common.Hash(digest.Keccak256(wire, author.Bytes(), countBytes[:]))
	ev := ledger.ContextEvent{
		Topic:       rec.TopicID,
		Seq:         rec.Sequence,
		Author:      author,
		PayloadHash: rec.PayloadDigest,
		URIHash:     rec.ReservedA,
		MetaHash:    rec.ReservedB,
		ContextID:   digest.Keccak256(rec.TopicID[:], author.Bytes(), seqBytes[:]),
		BlockNumber: block,
		TxHash:      txHash,
		LogIndex:    0,
		Timestamp:   l.blockTimes[block].Unix(),
	}
	l.events = append(l.events, ev)

	h := ledger.Handle(txHash.Hex())
	evCopy := ev
	l.receipts[h] = &ledger.Receipt{TxHash: txHash, BlockNumber: block, GasUsed: gasPerWrite, Event: &evCopy}
	return h, nil
}

// WaitReceipt mines empty blocks until the receipt has the requested
// confirmations, then returns it.
func (l *Ledger) WaitReceipt(ctx context.Context, h ledger.Handle, confirmations uint64) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.receipts[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	for confirmations > 0 && l.head+1 < r.BlockNumber+confirmations {
		l.mineLocked()
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) Head(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head, nil
}

func (l *Ledger) FilterContexts(_ context.Context, from, to uint64, topics ...digest.Hash) ([]ledger.ContextEvent, error) {
	if to < from {
		return nil, fmt.Errorf("memledger: invalid block range [%d, %d]", from, to)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ledger.ContextEvent
	for _, ev := range l.events {
		if ev.BlockNumber < from || ev.BlockNumber > to {
			continue
		}
		if len(topics) > 0 && !containsHash(topics, ev.Topic) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *Ledger) BlockTime(_ context.Context, block uint64) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.blockTimes[block]
	if !ok {
		return time.Time{}, fmt.Errorf("memledger: block %d not found", block)
	}
	return t, nil
}

func containsHash(set []digest.Hash, h digest.Hash) bool {
	for _, s := range set {
		if s == h {
			return true
		}
	}
	return false
}
