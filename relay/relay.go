// Package relay mirrors ContextWritten events from the ledger into a
// queryable store and fans newly seen events out to stream subscribers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/topics"
)

// Query limits.
const (
	DefaultLimit = 200
	MaxLimit     = 1000
	TopicsLimit  = 50
)

// ErrInvalidQuery is returned for unparsable query parameters.
var ErrInvalidQuery = errors.New("relay: invalid query")

// Row is one stored event. Hashes and addresses are lowercase 0x-hex, except
// Author which keeps its checksummed form.
type Row struct {
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`
	Timestamp   int64  `json:"timestamp"`
	Topic       string `json:"topic"`
	TopicName   string `json:"topicName,omitempty"`
	Seq         uint64 `json:"seq"`
	Author      string `json:"author"`
	PayloadHash string `json:"payloadHash"`
	URIHash     string `json:"uriHash"`
	MetaHash    string `json:"metaHash"`
	ContextID   string `json:"contextId"`
}

// RowFromEvent converts a ledger event observed on chainID.
func RowFromEvent(chainID uint64, ev ledger.ContextEvent) Row {
	name, _ := topics.Name(ev.Topic)
	return Row{
		ChainID:     chainID,
		BlockNumber: ev.BlockNumber,
		TxHash:      strings.ToLower(ev.TxHash.Hex()),
		LogIndex:    ev.LogIndex,
		Timestamp:   ev.Timestamp,
		Topic:       ev.Topic.Hex(),
		TopicName:   name,
		Seq:         ev.Seq,
		Author:      ev.Author.Hex(),
		PayloadHash: ev.PayloadHash.Hex(),
		URIHash:     ev.URIHash.Hex(),
		MetaHash:    ev.MetaHash.Hex(),
		ContextID:   ev.ContextID.Hex(),
	}
}

// Key is the de-duplication key (txHash, logIndex).
func (r Row) Key() string {
	return r.TxHash + ":" + strconv.FormatUint(uint64(r.LogIndex), 10)
}

// Event converts the row back to a ledger event.
func (r Row) Event() (ledger.ContextEvent, error) {
	ev := ledger.ContextEvent{
		Seq:         r.Seq,
		Author:      common.HexToAddress(r.Author),
		BlockNumber: r.BlockNumber,
		TxHash:      common.HexToHash(r.TxHash),
		LogIndex:    r.LogIndex,
		Timestamp:   r.Timestamp,
	}
	for _, f := range []struct {
		dst *digest.Hash
		src string
	}{
		{&ev.Topic, r.Topic},
		{&ev.PayloadHash, r.PayloadHash},
		{&ev.URIHash, r.URIHash},
		{&ev.MetaHash, r.MetaHash},
		{&ev.ContextID, r.ContextID},
	} {
		h, err := digest.ParseHash(f.src)
		if err != nil {
			return ledger.ContextEvent{}, fmt.Errorf("row %s: %w", r.Key(), err)
		}
		*f.dst = h
	}
	return ev, nil
}

// Query selects events, newest first.
type Query struct {
	// Topic is a topic id in hex or a topic name.
	Topic string
	// Author is a 0x-hex address, matched case-insensitively.
	Author string
	Limit  int
}

// Normalize resolves Topic to a lowercase id, lowercases Author and clamps
// Limit to [1, MaxLimit], defaulting to DefaultLimit.
func (q Query) Normalize() (Query, error) {
	q.Topic = strings.TrimSpace(q.Topic)
	if q.Topic != "" {
		if id, err := digest.ParseHash(q.Topic); err == nil {
			q.Topic = id.Hex()
		} else {
			q.Topic = topics.ID(q.Topic).Hex()
		}
	}

	q.Author = strings.TrimSpace(q.Author)
	if q.Author != "" {
		if !common.IsHexAddress(q.Author) {
			return q, fmt.Errorf("%w: author %q", ErrInvalidQuery, q.Author)
		}
		q.Author = strings.ToLower(common.HexToAddress(q.Author).Hex())
	}

	q.Limit = ClampLimit(q.Limit)
	return q, nil
}

// Matches reports whether r satisfies a normalized query's filters.
func (q Query) Matches(r Row) bool {
	if q.Topic != "" && q.Topic != r.Topic {
		return false
	}
	if q.Author != "" && q.Author != strings.ToLower(r.Author) {
		return false
	}
	return true
}

// ClampLimit applies the default and bounds to a requested limit.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < 1:
		return 1
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// TopicCount is the number of stored events for a topic.
type TopicCount struct {
	Topic     string `json:"topic"`
	TopicName string `json:"topicName,omitempty"`
	Count     int64  `json:"count"`
}

// Store persists rows and the poll cursor.
type Store interface {
	// Insert stores r unless its key is already present. It reports whether
	// the row was new.
	Insert(ctx context.Context, r Row) (bool, error)
	// Cursor returns the saved cursor for key.
	Cursor(ctx context.Context, key string) (uint64, bool, error)
	SetCursor(ctx context.Context, key string, block uint64) error
	// QueryEvents returns matching rows ordered by block then log index,
	// newest first. q is normalized by the store.
	QueryEvents(ctx context.Context, q Query) ([]Row, error)
	// QueryTopics returns up to limit topics by descending count, ties by
	// topic id.
	QueryTopics(ctx context.Context, limit int) ([]TopicCount, error)
}

// CursorKey is the store key for the poll cursor of kernel on chainID.
func CursorKey(chainID uint64, kernel common.Address) string {
	return fmt.Sprintf("lastBlock:%d:%s", chainID, kernel.Hex())
}

// Newer reports whether a sorts before b in newest-first order.
func Newer(a, b Row) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber > b.BlockNumber
	}
	return a.LogIndex > b.LogIndex
}

// NewTopicCount builds a TopicCount, naming catalogued topics.
func NewTopicCount(topic string, count int64) TopicCount {
	tc := TopicCount{Topic: topic, Count: count}
	if id, err := digest.ParseHash(topic); err == nil {
		tc.TopicName, _ = topics.Name(id)
	}
	return tc
}
