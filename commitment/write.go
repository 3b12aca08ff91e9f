package commitment

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/digest"
)

// State is the progress of a Write.
type State int

const (
	Unbuilt State = iota
	Canonicalized
	Digested
	SequenceAcquired
	Built
	Submitted
	Failed
)

var stateNames = [...]string{"Unbuilt", "Canonicalized", "Digested", "SequenceAcquired", "Built", "Submitted", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Write walks one payload through
// Unbuilt -> Canonicalized -> Digested -> SequenceAcquired -> Built -> Submitted.
//
// A step called out of order returns a *StateError and leaves the state
// unchanged. Any other failure moves the write to Failed, which is terminal:
// a failed submission is never retried, because the sequence it carried may
// have been consumed. Start a new Write instead.
type Write struct {
	mu sync.Mutex

	author  common.Address
	topic   string
	payload canon.Value

	state     State
	err       error
	canonical []byte
	topicID   digest.Hash
	payloadD  digest.Hash
	seq       *Sequence
	record    Record
	handle    Handle
}

// NewWrite starts a write of payload on topic by author.
func NewWrite(author common.Address, topic string, payload canon.Value) *Write {
	return &Write{author: author, topic: topic, payload: payload}
}

func (w *Write) step(op string, from State) error {
	if w.state != from {
		return &StateError{Op: op, State: w.state}
	}
	return nil
}

func (w *Write) fail(err error) error {
	w.state = Failed
	w.err = err
	return err
}

// Canonicalize computes the canonical payload bytes.
func (w *Write) Canonicalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.step("canonicalize", Unbuilt); err != nil {
		return err
	}
	b, err := canon.Canonicalize(w.payload)
	if err != nil {
		return w.fail(err)
	}
	w.canonical = b
	w.state = Canonicalized
	return nil
}

// Digest derives the topic identifier and payload digest.
func (w *Write) Digest() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.step("digest", Canonicalized); err != nil {
		return err
	}
	topicID, err := digest.TopicChecked(w.topic)
	if err != nil {
		return w.fail(err)
	}
	w.topicID = topicID
	w.payloadD = digest.Payload(w.canonical)
	w.state = Digested
	return nil
}

// AcquireSequence reads the author's sequence number from src.
func (w *Write) AcquireSequence(ctx context.Context, src SequenceSource) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.step("acquire sequence", Digested); err != nil {
		return err
	}
	seq, err := AcquireSequence(ctx, src, w.author)
	if err != nil {
		return w.fail(err)
	}
	w.seq = seq
	w.state = SequenceAcquired
	return nil
}

// Build assembles the record.
func (w *Write) Build() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.step("build", SequenceAcquired); err != nil {
		return err
	}
	rec, err := Build(w.author, w.topicID, w.payloadD, w.seq)
	if err != nil {
		return w.fail(err)
	}
	w.record = rec
	w.state = Built
	return nil
}

// Submit hands the record to sub. params.Author defaults to the write's
// author and must match it when set. Errors from sub are returned unchanged.
func (w *Write) Submit(ctx context.Context, sub Submitter, params TxParams) (Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.step("submit", Built); err != nil {
		return "", err
	}
	if params.Author == (common.Address{}) {
		params.Author = w.author
	}
	if params.Author != w.author {
		return "", w.fail(fmt.Errorf("commitment: transaction parameters are for %s, record author is %s",
			params.Author.Hex(), w.author.Hex()))
	}
	h, err := sub.Submit(ctx, w.record, params)
	if err != nil {
		return "", w.fail(err)
	}
	w.handle = h
	w.state = Submitted
	return h, nil
}

// Run performs every remaining step. Transaction parameters are read from ps
// after the record is built.
func (w *Write) Run(ctx context.Context, src SequenceSource, ps ParamsSource, sub Submitter) (Handle, error) {
	if err := w.Prepare(ctx, src); err != nil {
		return "", err
	}
	params, err := ps.TxParams(ctx, w.author)
	if err != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		return "", w.fail(err)
	}
	return w.Submit(ctx, sub, params)
}

// Prepare runs the write from its current state up to Built.
func (w *Write) Prepare(ctx context.Context, src SequenceSource) error {
	steps := []struct {
		from State
		run  func() error
	}{
		{Unbuilt, w.Canonicalize},
		{Canonicalized, w.Digest},
		{Digested, func() error { return w.AcquireSequence(ctx, src) }},
		{SequenceAcquired, w.Build},
	}
	for _, s := range steps {
		if w.State() != s.from {
			continue
		}
		if err := s.run(); err != nil {
			return err
		}
	}
	if st := w.State(); st != Built {
		return &StateError{Op: "prepare", State: st}
	}
	return nil
}

// State returns the current state.
func (w *Write) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns the error that moved the write to Failed.
func (w *Write) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Canonical returns the canonical payload bytes once Canonicalized.
func (w *Write) Canonical() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.canonical...)
}

// Record returns the built record. The boolean is false before Built.
func (w *Write) Record() (Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record, w.record.Version != ""
}

// Handle returns the submission handle once Submitted.
func (w *Write) Handle() Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// Author returns the author the write was started for.
func (w *Write) Author() common.Address { return w.author }

// Topic returns the topic name.
func (w *Write) Topic() string { return w.topic }
