package kernel

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/ledger/memledger"
)

var (
	kernelAddr = common.HexToAddress("0x52078D914CbccD78EE856b37b438818afaB3899c")
	chainID    = big.NewInt(8453)
)

// fakeBackend answers kernel calls from an in-memory ledger and mines signed
// writeContext transactions into it.
type fakeBackend struct {
	mu       sync.Mutex
	ledger   *memledger.Ledger
	receipts map[common.Hash]*types.Receipt
	sendErr  error
	// receiptDelay is the number of TransactionReceipt calls answered with
	// NotFound before the receipt appears.
	receiptDelay int
}

func newFakeBackend(opts ...memledger.Option) *fakeBackend {
	return &fakeBackend{ledger: memledger.New(opts...), receipts: map[common.Hash]*types.Receipt{}}
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if call.To == nil || *call.To != kernelAddr {
		return nil, errors.New("no contract")
	}
	m, err := kernelABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case methodAuthorNonce:
		n, _ := f.ledger.AuthorNonce(ctx, args[0].(common.Address))
		return m.Outputs.Pack(n)
	case methodWriteFee:
		fee, _ := f.ledger.WriteFee(ctx, args[0].(common.Address))
		return m.Outputs.Pack(fee)
	case methodWriteContext:
		n, _ := f.ledger.AuthorNonce(ctx, call.From)
		if args[4].(uint64) != n {
			return nil, errors.New("execution reverted: BAD_NONCE")
		}
		return m.Outputs.Pack(n, [32]byte{})
	}
	return nil, fmt.Errorf("unexpected method %s", m.Name)
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, a common.Address) (uint64, error) {
	p, _ := f.ledger.TxParams(ctx, a)
	return p.TransactionCount, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return err
	}
	rec, err := UnpackWriteContext(tx.Data())
	if err != nil {
		return err
	}
	h, err := f.ledger.Submit(ctx, rec, ledger.TxParams{Author: from, Fee: tx.Value()})
	if err != nil {
		return err
	}
	r, err := f.ledger.WaitReceipt(ctx, h, 1)
	if err != nil {
		return err
	}
	ev := r.Event
	data, err := kernelABI.Events[eventContextWritten].Inputs.NonIndexed().Pack(
		[32]byte(ev.PayloadHash), [32]byte(ev.URIHash), [32]byte(ev.MetaHash), [32]byte(ev.ContextID))
	if err != nil {
		return err
	}
	lg := &types.Log{
		Address: kernelAddr,
		Topics: []common.Hash{
			ContextWrittenTopic(),
			common.Hash(ev.Topic),
			common.BigToHash(new(big.Int).SetUint64(ev.Seq)),
			common.BytesToHash(ev.Author.Bytes()),
		},
		Data:        data,
		BlockNumber: r.BlockNumber,
		TxHash:      tx.Hash(),
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(r.BlockNumber),
		GasUsed:     r.GasUsed,
		Logs:        []*types.Log{lg},
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptDelay > 0 {
		f.receiptDelay--
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for _, r := range f.receipts {
		for _, lg := range r.Logs {
			if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
				continue
			}
			if len(q.Topics) > 1 && !containsTopic(q.Topics[1], lg.Topics[1]) {
				continue
			}
			out = append(out, *lg)
		}
	}
	return out, nil
}

func containsTopic(set []common.Hash, h common.Hash) bool {
	for _, s := range set {
		if s == h {
			return true
		}
	}
	return false
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return f.ledger.Head(ctx)
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	t, err := f.ledger.BlockTime(ctx, n.Uint64())
	if err != nil {
		return nil, err
	}
	return &types.Header{Number: n, Time: uint64(t.Unix())}, nil
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func buildRecord(t *testing.T, c *Client, author common.Address, topic string, payload canon.Value) commitment.Record {
	t.Helper()
	b, err := canon.Canonicalize(payload)
	require.NoError(t, err)
	seq, err := commitment.AcquireSequence(context.Background(), c, author)
	require.NoError(t, err)
	rec, err := commitment.Build(author, digest.Topic(topic), digest.Payload(b), seq)
	require.NoError(t, err)
	return rec
}

func TestPackWriteContext_MatchesVector(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "testdata", "conformance", "commitments.json"))
	require.NoError(t, err)
	var v struct {
		Commitments []struct {
			Wire     string `json:"wire"`
			Calldata string `json:"calldata"`
		} `json:"commitments"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	require.NotEmpty(t, v.Commitments)

	for _, tc := range v.Commitments {
		wire, err := hex.DecodeString(tc.Wire)
		require.NoError(t, err)
		rec, err := commitment.UnmarshalRecord(wire)
		require.NoError(t, err)

		data, err := PackWriteContext(rec)
		require.NoError(t, err)
		require.Equal(t, tc.Calldata, hex.EncodeToString(data))
		require.Equal(t, "96c00b17", hex.EncodeToString(data[:4]))

		back, err := UnpackWriteContext(data)
		require.NoError(t, err)
		require.Equal(t, rec, back)
	}
}

func TestABI_Selectors(t *testing.T) {
	require.Equal(t, "a8bc76f4", hex.EncodeToString(kernelABI.Methods[methodAuthorNonce].ID))
	require.Equal(t, "1b375ab0", hex.EncodeToString(kernelABI.Methods[methodWriteFee].ID))
	require.Equal(t, "0xfb0e7f64df591cb749529c5dbf88b35484c4ae39b7b78cf1886648f5498be3bd", ContextWrittenTopic().Hex())
}

func TestClient_WriteAndReceipt(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(memledger.WithFee(big.NewInt(1000)))
	k, author := testKey(t)
	c := New(fb, kernelAddr, chainID, WithKey(k), WithPollInterval(time.Millisecond))

	require.True(t, c.CanSign())
	require.Equal(t, author, c.Address())

	fee, err := c.WriteFee(ctx, author)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), fee)

	rec := buildRecord(t, c, author, "lumen.sys.heartbeat", canon.Map{"note": canon.String("alive")})
	params, err := c.TxParams(ctx, author)
	require.NoError(t, err)
	require.Equal(t, uint64(0), params.TransactionCount)

	h, err := c.Submit(ctx, rec, params)
	require.NoError(t, err)

	fb.receiptDelay = 2
	r, err := c.WaitReceipt(ctx, h, 1)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(string(h)), r.TxHash)
	require.NotNil(t, r.Event)
	require.Equal(t, rec.TopicID, r.Event.Topic)
	require.Equal(t, rec.PayloadDigest, r.Event.PayloadHash)
	require.Equal(t, author, r.Event.Author)
	require.Equal(t, uint64(0), r.Event.Seq)

	n, err := c.AuthorNonce(ctx, author)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	events, err := c.FilterContexts(ctx, 0, 10, digest.Topic("lumen.sys.heartbeat"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, rec, events[0].Record())

	other, err := c.FilterContexts(ctx, 0, 10, digest.Topic("lumen.v0.demo"))
	require.NoError(t, err)
	require.Empty(t, other)

	head, err := c.Head(ctx)
	require.NoError(t, err)
	bt, err := c.BlockTime(ctx, head)
	require.NoError(t, err)
	require.False(t, bt.IsZero())
}

func TestClient_StaleSequenceIsConflict(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	k, author := testKey(t)
	c := New(fb, kernelAddr, chainID, WithKey(k))

	first := buildRecord(t, c, author, "lumen.v0.demo", canon.Map{"n": canon.Int(1)})
	second := buildRecord(t, c, author, "lumen.v0.demo", canon.Map{"n": canon.Int(2)})

	params, err := c.TxParams(ctx, author)
	require.NoError(t, err)
	_, err = c.Submit(ctx, first, params)
	require.NoError(t, err)

	params, err = c.TxParams(ctx, author)
	require.NoError(t, err)
	_, err = c.Submit(ctx, second, params)
	require.ErrorIs(t, err, ledger.ErrSubmissionConflict)

	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, uint64(0), ce.Sequence)
	require.Equal(t, uint64(1), ce.Current)
	require.Contains(t, ce.Cause.Error(), "BAD_NONCE")
}

func TestClient_SendFailureWithoutConflict(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.sendErr = errors.New("replacement transaction underpriced")
	k, author := testKey(t)
	c := New(fb, kernelAddr, chainID, WithKey(k))

	rec := buildRecord(t, c, author, "lumen.v0.demo", canon.Map{})
	_, err := c.Submit(ctx, rec, ledger.TxParams{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ledger.ErrSubmissionConflict)
	require.ErrorIs(t, err, fb.sendErr)
}

func TestClient_ReadOnly(t *testing.T) {
	c := New(newFakeBackend(), kernelAddr, chainID)
	require.False(t, c.CanSign())
	require.Equal(t, common.Address{}, c.Address())

	_, err := c.Submit(context.Background(), commitment.Record{Version: commitment.Version01}, ledger.TxParams{})
	require.ErrorIs(t, err, ledger.ErrCredentialRequired)
}

func TestClient_WrongAuthorParams(t *testing.T) {
	k, _ := testKey(t)
	c := New(newFakeBackend(), kernelAddr, chainID, WithKey(k))
	_, err := c.Submit(context.Background(), commitment.Record{Version: commitment.Version01},
		ledger.TxParams{Author: common.HexToAddress("0x02")})
	require.Error(t, err)
}

func TestClient_WaitReceiptCancelled(t *testing.T) {
	c := New(newFakeBackend(), kernelAddr, chainID, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.WaitReceipt(ctx, ledger.Handle(common.HexToHash("0x01").Hex()), 1)
	require.Error(t, err)
}

func TestDecodeContextWritten_RejectsForeignLogs(t *testing.T) {
	_, err := DecodeContextWritten(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	require.Error(t, err)
}
