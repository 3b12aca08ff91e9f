package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/client"
	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/ledger/memledger"
	"lumen.dev/sdk/topics"
)

var agent = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

func newWriter(t *testing.T) (*client.Client, *memledger.Ledger) {
	t.Helper()
	ml := memledger.New()
	c := client.NewWithLedger(ml,
		client.WithAuthor(agent),
		client.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	return c, ml
}

type mapRegistrar map[string]Handler

func (m mapRegistrar) Register(name, _ string, h Handler) error {
	if err := ValidateRegistration(name, h); err != nil {
		return err
	}
	m[name] = h
	return nil
}

func TestHeartbeatHandler(t *testing.T) {
	c, ml := newWriter(t)

	out, err := HeartbeatHandler(c, "idle")(context.Background(), "  ")
	require.NoError(t, err)

	events := ml.Events()
	require.Len(t, events, 1)
	require.Equal(t, "Heartbeat confirmed. Tx: "+events[0].TxHash.Hex(), out)
	require.Equal(t, topics.ID(topics.Heartbeat), events[0].Topic)

	want := client.HeartbeatPayload(agent, 1700000000, "idle")
	b, err := canon.Canonicalize(want)
	require.NoError(t, err)
	require.NoError(t, commitment.VerifyCanonical(events[0].Record(), topics.Heartbeat, b))
}

func TestWriteContextHandler(t *testing.T) {
	c, ml := newWriter(t)
	h := WriteContextHandler(c, topics.JobRequest)

	out, err := h(context.Background(), "order #7 received")
	require.NoError(t, err)
	require.Contains(t, out, "Context written to LUMEN (seq 0). Tx: 0x")

	events := ml.Events()
	require.Len(t, events, 1)
	b, err := canon.Canonicalize(ContextPayload("order #7 received"))
	require.NoError(t, err)
	require.Equal(t, `{"kind":"context","text":"order #7 received","v":"0.1"}`, string(b))
	require.NoError(t, commitment.VerifyCanonical(events[0].Record(), topics.JobRequest, b))

	_, err = h(context.Background(), "")
	require.Error(t, err)
	require.Len(t, ml.Events(), 1, "blank input never reaches the ledger")
}

func TestHandlers_PropagateErrors(t *testing.T) {
	ro := client.NewWithLedger(memledger.New())

	_, err := HeartbeatHandler(ro, "x")(context.Background(), "")
	require.ErrorIs(t, err, ledger.ErrCredentialRequired)

	c, ml := newWriter(t)
	boom := errors.New("rpc down")
	ml.FailNext(boom)
	_, err = WriteContextHandler(c, topics.Demo)(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
}

func TestRegisterDefaults(t *testing.T) {
	c, ml := newWriter(t)
	reg := mapRegistrar{}

	require.NoError(t, RegisterDefaults(reg, c, Options{}))
	require.Len(t, reg, 2)
	require.Contains(t, reg, HeartbeatName)
	require.Contains(t, reg, WriteContextName)

	_, err := reg[WriteContextName](context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, topics.ID(topics.JobRequest), ml.Events()[0].Topic)
}

func TestValidateRegistration(t *testing.T) {
	require.ErrorIs(t, ValidateRegistration(" ", func(context.Context, string) (string, error) { return "", nil }), ErrInvalidRegistration)
	require.ErrorIs(t, ValidateRegistration("x", nil), ErrInvalidRegistration)
}
