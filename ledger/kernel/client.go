// Package kernel is the ledger client for the kernel contract on an EVM chain.
// It reads author sequences and fees, signs and broadcasts writeContext
// transactions, waits for receipts and decodes ContextWritten events.
package kernel

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/ledger"
)

var logger = log.New("ledger-kernel")

const (
	defaultPollInterval = 2 * time.Second
	// Gas estimates are padded by this percentage.
	gasHeadroomPercent = 20
)

// Backend is the JSON-RPC surface the client needs. *ethclient.Client
// implements it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Option configures a Client.
type Option func(c *Client)

// WithKey sets the signing key. Without one the client is read-only and
// Submit returns ledger.ErrCredentialRequired.
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(c *Client) { c.key = key }
}

// WithPollInterval sets how often WaitReceipt polls for the receipt.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// Client talks to one kernel contract. It is safe for concurrent use; the
// ledger serializes sequences and reports stale ones as conflicts.
type Client struct {
	backend      Backend
	kernel       common.Address
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	pollInterval time.Duration
}

var _ ledger.Ledger = (*Client)(nil)

// New returns a client for the kernel at address on chain chainID.
func New(backend Backend, kernel common.Address, chainID *big.Int, opts ...Option) *Client {
	c := &Client{
		backend:      backend,
		kernel:       kernel,
		chainID:      new(big.Int).Set(chainID),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to rpcURL. When chainID is zero it is read from the node.
func Dial(ctx context.Context, rpcURL string, kernel common.Address, chainID uint64, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, ledger.NewTransient(fmt.Errorf("kernel: dial: %w", err))
	}
	id := new(big.Int).SetUint64(chainID)
	if chainID == 0 {
		id, err = ec.ChainID(ctx)
		if err != nil {
			ec.Close()
			return nil, ledger.NewTransient(fmt.Errorf("kernel: chain id: %w", err))
		}
	} else if remote, err := ec.ChainID(ctx); err == nil && remote.Cmp(id) != 0 {
		ec.Close()
		return nil, fmt.Errorf("kernel: node is on chain %s, configured for %s", remote, id)
	}
	logger.Debug("Connected to ledger", logfields.WithKernel(kernel), logfields.WithChainID(id.Uint64()))
	return New(ec, kernel, id, opts...), nil
}

// Kernel is the contract address.
func (c *Client) Kernel() common.Address { return c.kernel }

// ChainID is the chain the client signs for.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Address is the signing identity, or the zero address for a read-only client.
func (c *Client) Address() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// Close releases the RPC connection when the backend holds one.
func (c *Client) Close() {
	if cl, ok := c.backend.(interface{ Close() }); ok {
		cl.Close()
	}
}

// CanSign reports whether a signing key is configured.
func (c *Client) CanSign() bool { return c.key != nil }

func (c *Client) call(ctx context.Context, method string, out func([]interface{}) error, args ...interface{}) error {
	data, err := kernelABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("kernel: pack %s: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.kernel, Data: data}, nil)
	if err != nil {
		return ledger.NewTransient(fmt.Errorf("kernel: call %s: %w", method, err))
	}
	values, err := kernelABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("kernel: unpack %s: %w", method, err)
	}
	return out(values)
}

// AuthorNonce reads authorNonce(author).
func (c *Client) AuthorNonce(ctx context.Context, author common.Address) (uint64, error) {
	var n uint64
	err := c.call(ctx, methodAuthorNonce, func(v []interface{}) error {
		var ok bool
		if len(v) == 1 {
			n, ok = v[0].(uint64)
		}
		if !ok {
			return fmt.Errorf("kernel: unexpected %s result %v", methodAuthorNonce, v)
		}
		return nil
	}, author)
	return n, err
}

// WriteFee reads getWriteFeeFor(author) in wei.
func (c *Client) WriteFee(ctx context.Context, author common.Address) (*big.Int, error) {
	var fee *big.Int
	err := c.call(ctx, methodWriteFee, func(v []interface{}) error {
		var ok bool
		if len(v) == 1 {
			fee, ok = v[0].(*big.Int)
		}
		if !ok {
			return fmt.Errorf("kernel: unexpected %s result %v", methodWriteFee, v)
		}
		return nil
	}, author)
	return fee, err
}

// TxParams reads the author's pending transaction count, the suggested gas
// price and the write fee. GasLimit is left zero; Submit estimates it.
func (c *Client) TxParams(ctx context.Context, author common.Address) (ledger.TxParams, error) {
	count, err := c.backend.PendingNonceAt(ctx, author)
	if err != nil {
		return ledger.TxParams{}, ledger.NewTransient(fmt.Errorf("kernel: pending nonce: %w", err))
	}
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return ledger.TxParams{}, ledger.NewTransient(fmt.Errorf("kernel: gas price: %w", err))
	}
	fee, err := c.WriteFee(ctx, author)
	if err != nil {
		return ledger.TxParams{}, err
	}
	return ledger.TxParams{Author: author, TransactionCount: count, GasPrice: price, Fee: fee}, nil
}

// Submit signs a writeContext transaction for rec and broadcasts it.
//
// The call is simulated first. If simulation or broadcast fails and the
// ledger's sequence for the author no longer equals rec.Sequence, the
// failure is reported as a *ledger.ConflictError wrapping the node's error.
func (c *Client) Submit(ctx context.Context, rec commitment.Record, params ledger.TxParams) (ledger.Handle, error) {
	if c.key == nil {
		return "", ledger.ErrCredentialRequired
	}
	from := c.Address()
	if params.Author != (common.Address{}) && params.Author != from {
		return "", fmt.Errorf("kernel: parameters are for %s, key is for %s", params.Author.Hex(), from.Hex())
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	data, err := PackWriteContext(rec)
	if err != nil {
		return "", fmt.Errorf("kernel: pack %s: %w", methodWriteContext, err)
	}
	value := new(big.Int)
	if params.Fee != nil {
		value.Set(params.Fee)
	}
	msg := ethereum.CallMsg{From: from, To: &c.kernel, Value: value, Data: data}

	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return "", c.classifySubmitError(ctx, rec, from, fmt.Errorf("kernel: preflight: %w", err))
	}

	gas := params.GasLimit
	if gas == 0 {
		est, err := c.backend.EstimateGas(ctx, msg)
		if err != nil {
			return "", c.classifySubmitError(ctx, rec, from, fmt.Errorf("kernel: estimate gas: %w", err))
		}
		gas = est + est*gasHeadroomPercent/100
	}
	price := params.GasPrice
	if price == nil {
		if price, err = c.backend.SuggestGasPrice(ctx); err != nil {
			return "", ledger.NewTransient(fmt.Errorf("kernel: gas price: %w", err))
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    params.TransactionCount,
		GasPrice: price,
		Gas:      gas,
		To:       &c.kernel,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("kernel: sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", c.classifySubmitError(ctx, rec, from, fmt.Errorf("kernel: send: %w", err))
	}

	h := signed.Hash().Hex()
	logger.Info("Submitted context write",
		logfields.WithAuthor(from), logfields.WithTopicID(rec.TopicID),
		logfields.WithSequence(rec.Sequence), logfields.WithTxHash(h))
	return ledger.Handle(h), nil
}

func (c *Client) classifySubmitError(ctx context.Context, rec commitment.Record, author common.Address, cause error) error {
	current, err := c.AuthorNonce(ctx, author)
	if err != nil {
		logger.Warn("Unable to re-read author nonce after failed submission",
			logfields.WithAuthor(author), log.WithError(err))
		return cause
	}
	if current != rec.Sequence {
		return &ledger.ConflictError{Author: author, Sequence: rec.Sequence, Current: current, Cause: cause}
	}
	return cause
}

// WaitReceipt polls until the transaction has the requested confirmations.
// A reverted transaction returns ledger.ErrReceiptFailed.
func (c *Client) WaitReceipt(ctx context.Context, h ledger.Handle, confirmations uint64) (*ledger.Receipt, error) {
	txHash := common.HexToHash(string(h))
	if confirmations == 0 {
		confirmations = 1
	}

	var out *ledger.Receipt
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				logger.Debug("Receipt poll failed", logfields.WithTxHash(string(h)),
					logfields.WithAttempt(attempt), log.WithError(err))
			}
			return err
		}
		if r.Status != types.ReceiptStatusSuccessful {
			return backoff.Permanent(fmt.Errorf("%w: %s", ledger.ErrReceiptFailed, txHash.Hex()))
		}
		block := r.BlockNumber.Uint64()
		if confirmations > 1 {
			head, err := c.backend.BlockNumber(ctx)
			if err != nil {
				return err
			}
			if head+1 < block+confirmations {
				return fmt.Errorf("kernel: waiting for %d confirmations, head is %d", confirmations, head)
			}
		}
		out = &ledger.Receipt{TxHash: r.TxHash, BlockNumber: block, GasUsed: r.GasUsed}
		for _, lg := range r.Logs {
			if lg.Address != c.kernel {
				continue
			}
			ev, err := DecodeContextWritten(*lg)
			if err != nil {
				continue
			}
			out.Event = &ev
			break
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	logger.Debug("Receipt confirmed", logfields.WithTxHash(string(h)),
		logfields.WithBlock(out.BlockNumber), logfields.WithConfirmations(confirmations))
	return out, nil
}

// Head returns the latest block number.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, ledger.NewTransient(fmt.Errorf("kernel: block number: %w", err))
	}
	return n, nil
}

// FilterContexts returns the ContextWritten events emitted by the kernel in
// blocks [from, to], optionally limited to topics.
func (c *Client) FilterContexts(ctx context.Context, from, to uint64, topics ...digest.Hash) ([]ledger.ContextEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.kernel},
		Topics:    [][]common.Hash{{ContextWrittenTopic()}},
	}
	if len(topics) > 0 {
		ids := make([]common.Hash, len(topics))
		for i, t := range topics {
			ids[i] = common.Hash(t)
		}
		q.Topics = append(q.Topics, ids)
	}

	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, ledger.NewTransient(fmt.Errorf("kernel: filter logs [%d, %d]: %w", from, to, err))
	}
	out := make([]ledger.ContextEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := DecodeContextWritten(lg)
		if err != nil {
			logger.Warn("Skipping undecodable log", logfields.WithTxHash(lg.TxHash.Hex()), log.WithError(err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// BlockTime returns the timestamp of block.
func (c *Client) BlockTime(ctx context.Context, block uint64) (time.Time, error) {
	h, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return time.Time{}, ledger.NewTransient(fmt.Errorf("kernel: header %d: %w", block, err))
	}
	return time.Unix(int64(h.Time), 0).UTC(), nil
}
