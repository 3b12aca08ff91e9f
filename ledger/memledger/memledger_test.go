package memledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger"
)

var author = common.HexToAddress("0x1111111111111111111111111111111111111111")

func build(t *testing.T, l *Ledger, note string) commitment.Record {
	t.Helper()
	c, err := canon.Canonicalize(canon.Map{"note": canon.String(note)})
	require.NoError(t, err)
	seq, err := commitment.AcquireSequence(context.Background(), l, author)
	require.NoError(t, err)
	rec, err := commitment.Build(author, digest.Topic("lumen.v0.demo"), digest.Payload(c), seq)
	require.NoError(t, err)
	return rec
}

func TestSubmit_SequenceReuseRejected(t *testing.T) {
	ctx := context.Background()
	l := New()

	// Two writers read the same sequence before either submits.
	first := build(t, l, "one")
	second := build(t, l, "two")
	require.Equal(t, first.Sequence, second.Sequence)

	params, err := l.TxParams(ctx, author)
	require.NoError(t, err)

	_, err = l.Submit(ctx, first, params)
	require.NoError(t, err)

	_, err = l.Submit(ctx, second, params)
	require.ErrorIs(t, err, ledger.ErrSubmissionConflict)

	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, author, ce.Author)
	require.Equal(t, uint64(0), ce.Sequence)
	require.Equal(t, uint64(1), ce.Current)
	require.ErrorIs(t, err, ErrBadNonce, "ledger cause is preserved")

	require.Len(t, l.Events(), 1)

	// Re-running from sequence acquisition succeeds.
	retry := build(t, l, "two")
	_, err = l.Submit(ctx, retry, params)
	require.NoError(t, err)

	n, err := l.AuthorNonce(ctx, author)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestSubmit_Fee(t *testing.T) {
	ctx := context.Background()
	l := New(WithFee(big.NewInt(500)))
	rec := build(t, l, "x")

	_, err := l.Submit(ctx, rec, ledger.TxParams{Author: author, Fee: big.NewInt(499)})
	require.ErrorIs(t, err, ErrInsufficientFee)

	params, err := l.TxParams(ctx, author)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), params.Fee)

	_, err = l.Submit(ctx, rec, params)
	require.NoError(t, err)
}

func TestSubmit_NoAuthor(t *testing.T) {
	l := New()
	_, err := l.Submit(context.Background(), build(t, l, "x"), ledger.TxParams{})
	require.ErrorIs(t, err, ledger.ErrCredentialRequired)
}

func TestSubmit_FailNext(t *testing.T) {
	ctx := context.Background()
	l := New()
	boom := errors.New("rpc down")
	l.FailNext(boom)

	params, _ := l.TxParams(ctx, author)
	_, err := l.Submit(ctx, build(t, l, "x"), params)
	require.Same(t, boom, err)

	n, _ := l.AuthorNonce(ctx, author)
	require.Zero(t, n)
}

func TestWaitReceipt(t *testing.T) {
	ctx := context.Background()
	l := New()
	params, _ := l.TxParams(ctx, author)
	rec := build(t, l, "x")
	h, err := l.Submit(ctx, rec, params)
	require.NoError(t, err)

	r, err := l.WaitReceipt(ctx, h, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.BlockNumber)
	require.NotNil(t, r.Event)
	require.Equal(t, rec, r.Event.Record())

	head, _ := l.Head(ctx)
	require.Equal(t, uint64(3), head)

	_, err = l.WaitReceipt(ctx, "0xnope", 1)
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestFilterContexts(t *testing.T) {
	ctx := context.Background()
	ts := time.Unix(1700000000, 0)
	l := New(WithClock(func() time.Time { return ts }))
	params, _ := l.TxParams(ctx, author)

	_, err := l.Submit(ctx, build(t, l, "a"), params)
	require.NoError(t, err)
	l.MineEmpty(2)

	c, _ := canon.Canonicalize(canon.Map{})
	seq, _ := commitment.AcquireSequence(ctx, l, author)
	other, _ := commitment.Build(author, digest.Topic("lumen.sys.heartbeat"), digest.Payload(c), seq)
	_, err = l.Submit(ctx, other, params)
	require.NoError(t, err)

	all, err := l.FilterContexts(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, uint64(4), all[1].BlockNumber)
	require.Equal(t, ts.Unix(), all[1].Timestamp)

	hb, err := l.FilterContexts(ctx, 0, 10, digest.Topic("lumen.sys.heartbeat"))
	require.NoError(t, err)
	require.Len(t, hb, 1)

	none, err := l.FilterContexts(ctx, 2, 3)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = l.FilterContexts(ctx, 5, 4)
	require.Error(t, err)

	bt, err := l.BlockTime(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, ts, bt)
	_, err = l.BlockTime(ctx, 99)
	require.Error(t, err)
}

func TestWriteFlow_WithCommitmentWrite(t *testing.T) {
	ctx := context.Background()
	l := New()

	w := commitment.NewWrite(author, "lumen.sys.heartbeat", canon.Map{"ok": canon.Bool(true)})
	h, err := w.Run(ctx, l, l, l)
	require.NoError(t, err)
	require.NotEmpty(t, h)
	require.Equal(t, commitment.Submitted, w.State())

	// A second write that raced on the same sequence fails with a conflict
	// and is not retried.
	l.SetNonce(author, 5)
	stale := commitment.NewWrite(author, "lumen.sys.heartbeat", canon.Map{})
	require.NoError(t, stale.Prepare(ctx, commitment.SequenceSourceFunc(func(context.Context, common.Address) (uint64, error) {
		return 4, nil
	})))
	params, _ := l.TxParams(ctx, author)
	_, err = stale.Submit(ctx, l, params)
	require.ErrorIs(t, err, ledger.ErrSubmissionConflict)
	require.Equal(t, commitment.Failed, stale.State())
}
