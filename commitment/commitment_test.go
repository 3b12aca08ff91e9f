package commitment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/digest"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func fixedNonce(n uint64) SequenceSource {
	return SequenceSourceFunc(func(context.Context, common.Address) (uint64, error) { return n, nil })
}

func heartbeatPayload() canon.Map {
	return canon.Map{
		"v":     canon.String("0.1"),
		"kind":  canon.String("heartbeat"),
		"agent": canon.String("0xABC..."),
		"ts":    canon.Int(1700000000),
		"note":  canon.String("alive"),
	}
}

func TestBuild_HeartbeatScenario(t *testing.T) {
	c, err := canon.Canonicalize(heartbeatPayload())
	require.NoError(t, err)
	require.Equal(t, `{"agent":"0xABC...","kind":"heartbeat","note":"alive","ts":1700000000,"v":"0.1"}`, string(c))

	pd := digest.Payload(c)
	require.Equal(t, "0x031ee3c86e20fdf795c3758ef80b29dbf7ad31473db5f5f08157ffd0a6a5c69f", pd.Hex())

	seq, err := AcquireSequence(context.Background(), fixedNonce(7), alice)
	require.NoError(t, err)

	rec, err := Build(alice, digest.Topic("lumen.sys.heartbeat"), pd, seq)
	require.NoError(t, err)
	require.Equal(t, Version01, rec.Version)
	require.True(t, rec.ReservedA.IsZero())
	require.True(t, rec.ReservedB.IsZero())
	require.NoError(t, rec.Validate())

	wire, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, wire, 136)
	require.Equal(t, byte(7), wire[135])
}

func TestBuild_RequiresFreshSequence(t *testing.T) {
	topic := digest.Topic("lumen.v0.demo")
	pd := digest.Payload([]byte("{}"))

	_, err := Build(alice, topic, pd, nil)
	require.ErrorIs(t, err, ErrMissingSequence)

	seq, err := AcquireSequence(context.Background(), fixedNonce(3), bob)
	require.NoError(t, err)
	_, err = Build(alice, topic, pd, seq)
	require.ErrorIs(t, err, ErrMissingSequence, "sequence acquired for another author")
	require.False(t, seq.Spent())

	_, err = Build(bob, topic, pd, seq)
	require.NoError(t, err)
	require.True(t, seq.Spent())

	_, err = Build(bob, topic, pd, seq)
	var se *SequenceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, bob, se.Author)
}

func TestBuild_SequenceSpentOnceUnderContention(t *testing.T) {
	seq, err := AcquireSequence(context.Background(), fixedNonce(1), alice)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Build(alice, digest.Zero, digest.Zero, seq); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
}

func TestAcquireSequence_PropagatesLedgerError(t *testing.T) {
	boom := errors.New("rpc unavailable")
	_, err := AcquireSequence(context.Background(), SequenceSourceFunc(func(context.Context, common.Address) (uint64, error) {
		return 0, boom
	}), alice)
	require.Same(t, boom, err)
}

func TestRecord_WireRoundTrip(t *testing.T) {
	rec := Record{
		Version:       Version01,
		TopicID:       digest.Topic("a"),
		PayloadDigest: digest.Topic("b"),
		Sequence:      1<<63 + 5,
	}
	wire, err := rec.MarshalBinary()
	require.NoError(t, err)

	back, err := UnmarshalRecord(wire)
	require.NoError(t, err)
	require.Equal(t, rec, back)
	require.Equal(t, rec.ID(), back.ID())

	_, err = UnmarshalRecord(wire[:135])
	require.Error(t, err)
}

func TestRecord_Validate(t *testing.T) {
	rec := Record{Version: Version01}
	require.NoError(t, rec.Validate())

	rec.ReservedB[0] = 1
	require.Error(t, rec.Validate())

	require.Error(t, Record{}.Validate())
	require.Error(t, Record{Version: "9.9"}.Validate())
}

func TestConformanceVectors_Commitments(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "testdata", "conformance", "commitments.json"))
	require.NoError(t, err)

	var v struct {
		Commitments []struct {
			Name     string      `json:"name"`
			Topic    string      `json:"topic"`
			Payload  string      `json:"payload"`
			Sequence uint64      `json:"sequence"`
			Wire     string      `json:"wire"`
			RecordID digest.Hash `json:"record_id"`
		} `json:"commitments"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	require.NotEmpty(t, v.Commitments)

	for _, tc := range v.Commitments {
		t.Run(tc.Name, func(t *testing.T) {
			seq, err := AcquireSequence(context.Background(), fixedNonce(tc.Sequence), alice)
			require.NoError(t, err)
			rec, err := Build(alice, digest.Topic(tc.Topic), digest.Payload([]byte(tc.Payload)), seq)
			require.NoError(t, err)

			wire, err := rec.MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, tc.Wire, hex.EncodeToString(wire))
			require.Equal(t, tc.RecordID, rec.ID())
			require.NoError(t, VerifyCanonical(rec, tc.Topic, []byte(tc.Payload)))
		})
	}
}

func TestVerify(t *testing.T) {
	payload := heartbeatPayload()
	c, err := canon.Canonicalize(payload)
	require.NoError(t, err)
	seq, err := AcquireSequence(context.Background(), fixedNonce(0), alice)
	require.NoError(t, err)
	rec, err := Build(alice, digest.Topic("lumen.sys.heartbeat"), digest.Payload(c), seq)
	require.NoError(t, err)

	require.NoError(t, Verify(rec, "lumen.sys.heartbeat", payload))

	var me *MismatchError
	err = Verify(rec, "lumen.v0.heartbeat", payload)
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "topic", me.Field)

	payload["note"] = canon.String("tampered")
	err = Verify(rec, "lumen.sys.heartbeat", payload)
	require.ErrorIs(t, err, ErrMismatch)

	err = VerifyCanonical(rec, "lumen.sys.heartbeat", []byte(`{"v":"0.1","kind":"heartbeat","agent":"0xABC...","ts":1700000000,"note":"alive"}`))
	require.ErrorIs(t, err, ErrNotCanonical)

	err = Verify(rec, "lumen.sys.heartbeat", canon.Map{"f": nil})
	require.ErrorIs(t, err, canon.ErrUnsupportedValue)
}

type recordingSubmitter struct {
	got    []Record
	params []TxParams
	err    error
}

func (s *recordingSubmitter) Submit(_ context.Context, rec Record, params TxParams) (Handle, error) {
	if s.err != nil {
		return "", s.err
	}
	s.got = append(s.got, rec)
	s.params = append(s.params, params)
	return Handle("0xfeed"), nil
}

type staticParams TxParams

func (p staticParams) TxParams(context.Context, common.Address) (TxParams, error) {
	return TxParams(p), nil
}

func TestWrite_HappyPath(t *testing.T) {
	w := NewWrite(alice, "lumen.sys.heartbeat", heartbeatPayload())
	require.Equal(t, Unbuilt, w.State())

	require.NoError(t, w.Canonicalize())
	require.Equal(t, Canonicalized, w.State())
	require.NoError(t, w.Digest())
	require.Equal(t, Digested, w.State())
	require.NoError(t, w.AcquireSequence(context.Background(), fixedNonce(7)))
	require.Equal(t, SequenceAcquired, w.State())
	require.NoError(t, w.Build())
	require.Equal(t, Built, w.State())

	sub := &recordingSubmitter{}
	h, err := w.Submit(context.Background(), sub, TxParams{TransactionCount: 12, GasPrice: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, Handle("0xfeed"), h)
	require.Equal(t, Submitted, w.State())
	require.Equal(t, h, w.Handle())

	require.Len(t, sub.got, 1)
	assert.Equal(t, uint64(7), sub.got[0].Sequence)
	assert.Equal(t, alice, sub.params[0].Author)
	assert.Equal(t, uint64(12), sub.params[0].TransactionCount)
}

func TestWrite_OutOfOrder(t *testing.T) {
	w := NewWrite(alice, "t", canon.Map{})

	err := w.Build()
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, Unbuilt, w.State(), "out-of-order call must not change state")

	_, err = w.Submit(context.Background(), &recordingSubmitter{}, TxParams{})
	var se *StateError
	require.ErrorAs(t, err, &se)
	require.Equal(t, Unbuilt, se.State)

	require.NoError(t, w.Canonicalize())
	require.ErrorIs(t, w.Canonicalize(), ErrInvalidTransition)
}

func TestWrite_FailedSubmissionIsTerminal(t *testing.T) {
	conflict := errors.New("nonce already used")
	w := NewWrite(alice, "t", canon.Map{"a": canon.Int(1)})
	sub := &recordingSubmitter{err: conflict}

	_, err := w.Run(context.Background(), fixedNonce(4), staticParams{}, sub)
	require.Same(t, conflict, err)
	require.Equal(t, Failed, w.State())
	require.Same(t, conflict, w.Err())

	sub.err = nil
	_, err = w.Submit(context.Background(), sub, TxParams{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, sub.got)
}

func TestWrite_CanonicalizationFailure(t *testing.T) {
	w := NewWrite(alice, "t", canon.Map{"x": nil})
	err := w.Prepare(context.Background(), fixedNonce(0))
	require.ErrorIs(t, err, canon.ErrUnsupportedValue)
	require.Equal(t, Failed, w.State())
}

func TestWrite_ParamsForAnotherAuthor(t *testing.T) {
	w := NewWrite(alice, "t", canon.Map{})
	require.NoError(t, w.Prepare(context.Background(), fixedNonce(0)))

	_, err := w.Submit(context.Background(), &recordingSubmitter{}, TxParams{Author: bob})
	require.Error(t, err)
	require.Equal(t, Failed, w.State())
}

func TestWrite_Run(t *testing.T) {
	w := NewWrite(alice, "lumen.v0.demo", canon.Seq{canon.String("x")})
	sub := &recordingSubmitter{}
	h, err := w.Run(context.Background(), fixedNonce(9), staticParams{TransactionCount: 30}, sub)
	require.NoError(t, err)
	require.Equal(t, Handle("0xfeed"), h)

	rec, ok := w.Record()
	require.True(t, ok)
	require.Equal(t, uint64(9), rec.Sequence)
	require.Equal(t, digest.Payload([]byte(`["x"]`)), rec.PayloadDigest)
	require.Equal(t, `["x"]`, string(w.Canonical()))
}
