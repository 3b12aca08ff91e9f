// Package client is the high-level lumen client: it turns (topic, payload)
// into a submitted commitment, optionally archives the canonical payload and
// waits for the ledger receipt.
package client

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/config"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/internal/metrics"
	"lumen.dev/sdk/keys"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/ledger/kernel"
	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casconfig"
	"lumen.dev/sdk/storage/casregistry"
)

var logger = log.New("lumen-client")

// Option configures a Client.
type Option func(*Client)

// WithCAS archives every written payload in cas before submission.
func WithCAS(cas storage.CAS) Option {
	return func(c *Client) { c.cas = cas }
}

// WithMetrics records write metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithConfirmations makes Write wait for n confirmations. Zero returns as
// soon as the ledger accepts the submission.
func WithConfirmations(n uint64) Option {
	return func(c *Client) { c.confirmations = n }
}

// WithClock replaces time.Now for heartbeat timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithAuthor sets the signing author for a ledger built outside New. A zero
// address leaves the client read-only.
func WithAuthor(author common.Address) Option {
	return func(c *Client) { c.author = author }
}

// Client writes commitments for one author. Writes are serialized so the
// client never races itself for a sequence.
type Client struct {
	ledger        ledger.Ledger
	author        common.Address
	cas           storage.CAS
	metrics       *metrics.Metrics
	confirmations uint64
	now           func() time.Time
	closers       []func() error

	writeMu sync.Mutex
}

// Result describes a submitted write.
type Result struct {
	Topic     string            `json:"topic"`
	Record    commitment.Record `json:"record"`
	Canonical []byte            `json:"-"`
	Handle    ledger.Handle     `json:"txHash"`
	CID       cid.Cid           `json:"-"`
	Receipt   *ledger.Receipt   `json:"receipt,omitempty"`
}

// New connects to the ledger described by cfg. Without a credential the
// client is read-only. cfg.CASConfig, when set, names a casconfig file whose
// backends receive every written payload. Extra options apply after the
// config.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var kopts []kernel.Option
	var author common.Address
	if cfg.HasCredential() {
		key, err := cfg.Key()
		if err != nil {
			return nil, err
		}
		author = keys.Address(key)
		kopts = append(kopts, kernel.WithKey(key))
	}

	kc, err := kernel.Dial(ctx, cfg.RPCURL, cfg.Kernel(), cfg.ChainID, kopts...)
	if err != nil {
		return nil, err
	}

	c := NewWithLedger(kc, append([]Option{WithAuthor(author), WithConfirmations(cfg.Confirmations)}, opts...)...)
	c.closers = append(c.closers, func() error { kc.Close(); return nil })

	if cfg.CASConfig != "" && c.cas == nil {
		casCfg, err := casconfig.LoadFile(cfg.CASConfig)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		cas, closeFn, err := casCfg.Open(ctx, casregistry.UsageCLI, "")
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.cas = cas
		if closeFn != nil {
			c.closers = append(c.closers, closeFn)
		}
	}

	logger.Info("Client ready", logfields.WithConfig(cfg.Redacted()), logfields.WithAuthor(author))

	return c, nil
}

// NewWithLedger builds a client over an existing ledger. Use WithAuthor to
// enable writes.
func NewWithLedger(l ledger.Ledger, opts ...Option) *Client {
	c := &Client{
		ledger: l,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Author returns the signing author, or the zero address when read-only.
func (c *Client) Author() common.Address { return c.author }

// CanWrite reports whether a credential is configured.
func (c *Client) CanWrite() bool { return c.author != (common.Address{}) }

// Ledger returns the underlying ledger client.
func (c *Client) Ledger() ledger.Ledger { return c.ledger }

// CAS returns the payload archive, or nil.
func (c *Client) CAS() storage.CAS { return c.cas }

// Close releases the ledger connection and archive backends.
func (c *Client) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

// Write commits payload under topic. It fails with ledger.ErrCredentialRequired
// before any ledger call when the client is read-only. A stale sequence is
// returned as *ledger.ConflictError; the caller decides whether to retry.
func (c *Client) Write(ctx context.Context, topic string, payload canon.Value) (*Result, error) {
	if !c.CanWrite() {
		return nil, ledger.ErrCredentialRequired
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	res, err := c.write(ctx, topic, payload)
	if err != nil {
		c.metrics.WriteFailed()
		logger.Warn("Context write failed", logfields.WithTopic(topic), logfields.WithAuthor(c.author), log.WithError(err))
		// res carries the handle when only the receipt wait failed.
		return res, err
	}
	c.metrics.WriteTime(time.Since(start))

	logger.Info("Context written",
		logfields.WithTopic(topic),
		logfields.WithSequence(res.Record.Sequence),
		logfields.WithPayloadDigest(res.Record.PayloadDigest),
		logfields.WithTxHash(string(res.Handle)))
	if res.Receipt != nil && res.Receipt.Event != nil {
		logger.Debug("Context confirmed", logfields.WithContextID(res.Receipt.Event.ContextID), logfields.WithBlock(res.Receipt.BlockNumber))
	}

	return res, nil
}

func (c *Client) write(ctx context.Context, topic string, payload canon.Value) (*Result, error) {
	w := commitment.NewWrite(c.author, topic, payload)
	if err := w.Prepare(ctx, c.ledger); err != nil {
		logger.Debug("Write preparation stopped", logfields.WithState(w.State()), logfields.WithTopic(topic))
		return nil, err
	}
	rec, _ := w.Record()
	res := &Result{Topic: topic, Record: rec, Canonical: w.Canonical()}

	if c.cas != nil {
		id, err := storage.Archive(ctx, c.cas, res.Canonical, rec.PayloadDigest)
		if err != nil {
			return nil, fmt.Errorf("archive payload: %w", err)
		}
		res.CID = id
		c.metrics.PayloadArchived()
		logger.Debug("Archived payload", logfields.WithCID(id), logfields.WithPayloadDigest(rec.PayloadDigest))
	}

	params, err := c.ledger.TxParams(ctx, c.author)
	if err != nil {
		return nil, err
	}
	h, err := w.Submit(ctx, c.ledger, params)
	if err != nil {
		return nil, err
	}
	res.Handle = h

	if c.confirmations > 0 {
		receipt, err := c.ledger.WaitReceipt(ctx, h, c.confirmations)
		if err != nil {
			return res, fmt.Errorf("wait for receipt of %s: %w", h, err)
		}
		res.Receipt = receipt
	}

	return res, nil
}

// WriteAny converts a native Go value (maps, slices, strings, integers,
// bools, nil) and writes it.
func (c *Client) WriteAny(ctx context.Context, topic string, payload any) (*Result, error) {
	v, err := canon.FromAny(payload)
	if err != nil {
		return nil, err
	}
	return c.Write(ctx, topic, v)
}

// WriteJSON parses a JSON document and writes it.
func (c *Client) WriteJSON(ctx context.Context, topic string, payload []byte) (*Result, error) {
	v, err := canon.ParseJSON(payload)
	if err != nil {
		return nil, err
	}
	return c.Write(ctx, topic, v)
}

// Status is a snapshot of the author's standing on the ledger.
type Status struct {
	Author   common.Address `json:"author"`
	CanWrite bool           `json:"canWrite"`
	Nonce    uint64         `json:"nonce"`
	WriteFee *big.Int       `json:"writeFee,omitempty"`
	Head     uint64         `json:"head"`
}

// Status reads the author's nonce and write fee and the ledger head. For a
// read-only client only Head is filled in.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	head, err := c.ledger.Head(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{Author: c.author, CanWrite: c.CanWrite(), Head: head}
	if !st.CanWrite {
		return st, nil
	}

	if st.Nonce, err = c.ledger.AuthorNonce(ctx, c.author); err != nil {
		return nil, err
	}
	if st.WriteFee, err = c.ledger.WriteFee(ctx, c.author); err != nil {
		return nil, err
	}
	return st, nil
}

// VerifyEvent fetches the payload of ev from the archive and checks it
// against the event's record and topic name. It returns the canonical bytes.
func (c *Client) VerifyEvent(ctx context.Context, ev ledger.ContextEvent, topic string) ([]byte, error) {
	if c.cas == nil {
		return nil, fmt.Errorf("verify event: no payload archive configured")
	}
	b, err := storage.Fetch(ctx, c.cas, ev.PayloadHash)
	if err != nil {
		return nil, err
	}
	if err := commitment.VerifyCanonical(ev.Record(), topic, b); err != nil {
		return nil, err
	}
	return b, nil
}
