// Package storetest holds the behavior every relay.Store must share.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/relay"
	"lumen.dev/sdk/topics"
)

// Authors used by Row.
var (
	AuthorA = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	AuthorB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// Row builds a stored row for tests.
func Row(block uint64, logIndex uint, topic string, author common.Address) relay.Row {
	tx := digest.Keccak256([]byte(fmt.Sprintf("tx-%d", block)))
	return relay.Row{
		ChainID:     8453,
		BlockNumber: block,
		TxHash:      tx.Hex(),
		LogIndex:    logIndex,
		Timestamp:   1700000000 + int64(block),
		Topic:       topics.ID(topic).Hex(),
		Seq:         block,
		Author:      author.Hex(),
		PayloadHash: digest.Payload([]byte(fmt.Sprintf("%d/%d", block, logIndex))).Hex(),
		URIHash:     digest.Zero.Hex(),
		MetaHash:    digest.Zero.Hex(),
		ContextID:   digest.Keccak256(tx[:], []byte{byte(logIndex)}).Hex(),
	}
}

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) relay.Store) {
	t.Helper()

	t.Run("InsertDeduplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := Row(10, 0, topics.Heartbeat, AuthorA)

		ok, err := s.Insert(ctx, r)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Insert(ctx, r)
		require.NoError(t, err)
		require.False(t, ok, "same (txHash, logIndex) is stored once")

		rows, err := s.QueryEvents(ctx, relay.Query{})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{r}, rows)

		counts, err := s.QueryTopics(ctx, relay.TopicsLimit)
		require.NoError(t, err)
		require.Len(t, counts, 1)
		require.Equal(t, int64(1), counts[0].Count)
		require.Equal(t, topics.Heartbeat, counts[0].TopicName)
	})

	t.Run("Cursor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.Cursor(ctx, "lastBlock:8453:0xabc")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.SetCursor(ctx, "lastBlock:8453:0xabc", 42))
		require.NoError(t, s.SetCursor(ctx, "lastBlock:8453:0xabc", 43))
		n, ok, err := s.Cursor(ctx, "lastBlock:8453:0xabc")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(43), n)

		_, ok, err = s.Cursor(ctx, "lastBlock:1:0xabc")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("QueryEvents", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := []relay.Row{
			Row(5, 1, topics.Heartbeat, AuthorA),
			Row(7, 0, topics.JobRequest, AuthorB),
			Row(5, 3, topics.JobRequest, AuthorA),
			Row(9, 2, topics.Heartbeat, AuthorB),
			Row(9, 0, topics.Heartbeat, AuthorA),
		}
		for _, r := range rows {
			ok, err := s.Insert(ctx, r)
			require.NoError(t, err)
			require.True(t, ok)
		}

		got, err := s.QueryEvents(ctx, relay.Query{})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[3], rows[4], rows[1], rows[2], rows[0]}, got, "newest first")

		got, err = s.QueryEvents(ctx, relay.Query{Topic: topics.Heartbeat})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[3], rows[4], rows[0]}, got, "topic by name")

		got, err = s.QueryEvents(ctx, relay.Query{Topic: topics.ID(topics.JobRequest).Hex()})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[1], rows[2]}, got, "topic by id")

		got, err = s.QueryEvents(ctx, relay.Query{Author: "0X" + "2C7536E3605D9C16A7A3D7B1898E529396A65C23"})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[4], rows[2], rows[0]}, got, "author is case-insensitive")

		got, err = s.QueryEvents(ctx, relay.Query{Topic: topics.Heartbeat, Author: AuthorB.Hex()})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[3]}, got)

		got, err = s.QueryEvents(ctx, relay.Query{Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []relay.Row{rows[3], rows[4]}, got)

		got, err = s.QueryEvents(ctx, relay.Query{Limit: -5})
		require.NoError(t, err)
		require.Len(t, got, 1, "limit clamps to 1")

		_, err = s.QueryEvents(ctx, relay.Query{Author: "nope"})
		require.ErrorIs(t, err, relay.ErrInvalidQuery)
	})

	t.Run("QueryTopics", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := uint64(0); i < 3; i++ {
			_, err := s.Insert(ctx, Row(100+i, 0, topics.JobReceipt, AuthorA))
			require.NoError(t, err)
		}
		_, err := s.Insert(ctx, Row(200, 0, topics.Demo, AuthorA))
		require.NoError(t, err)
		_, err = s.Insert(ctx, Row(201, 0, "custom.topic", AuthorB))
		require.NoError(t, err)

		counts, err := s.QueryTopics(ctx, 50)
		require.NoError(t, err)
		require.Len(t, counts, 3)
		require.Equal(t, topics.ID(topics.JobReceipt).Hex(), counts[0].Topic)
		require.Equal(t, int64(3), counts[0].Count)
		require.Equal(t, topics.JobReceipt, counts[0].TopicName)
		require.Equal(t, int64(1), counts[1].Count)
		require.Less(t, counts[1].Topic, counts[2].Topic, "ties ordered by topic id")

		counts, err = s.QueryTopics(ctx, 1)
		require.NoError(t, err)
		require.Len(t, counts, 1)
	})
}
