package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	h := NewHub(2, nil)

	a := h.Subscribe()
	b := h.Subscribe()
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, h.Len())

	h.Broadcast(Row{TxHash: "0x01"})
	require.Equal(t, "0x01", (<-a.C).TxHash)
	require.Equal(t, "0x01", (<-b.C).TxHash)

	b.Cancel()
	b.Cancel()
	_, open := <-b.C
	require.False(t, open)
	require.Equal(t, 1, h.Len())

	// A full subscriber loses rows instead of blocking.
	for i := 0; i < 5; i++ {
		h.Broadcast(Row{LogIndex: uint(i)})
	}
	require.Len(t, a.C, 2)
	require.Equal(t, uint(0), (<-a.C).LogIndex)

	a.Cancel()
	require.Equal(t, 0, h.Len())
}

func TestQueryNormalize(t *testing.T) {
	q, err := Query{Topic: " lumen.sys.heartbeat ", Limit: 5000}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "0x", q.Topic[:2])
	require.Len(t, q.Topic, 66)
	require.Equal(t, MaxLimit, q.Limit)

	q2, err := Query{Topic: q.Topic[2:]}.Normalize()
	require.NoError(t, err)
	require.Equal(t, q.Topic, q2.Topic, "bare hex id")
	require.Equal(t, DefaultLimit, q2.Limit)

	_, err = Query{Author: "0x123"}.Normalize()
	require.ErrorIs(t, err, ErrInvalidQuery)

	require.Equal(t, 1, ClampLimit(-1))
	require.Equal(t, 7, ClampLimit(7))
}
