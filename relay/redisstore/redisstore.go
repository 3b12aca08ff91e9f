// Package redisstore is a relay.Store backed by Redis.
//
// Layout, under a configurable prefix:
//
//	{prefix}rows                 hash   event key -> row JSON
//	{prefix}idx:all              zset   event key scored by position
//	{prefix}idx:topic:{topic}    zset   per-topic index
//	{prefix}idx:author:{author}  zset   per-author index (lowercase address)
//	{prefix}topics               zset   topic -> event count
//	{prefix}meta                 hash   cursor key -> block
//
// Positions are blockNumber<<20 | logIndex, exact in a float64 score for
// blocks below 2^33.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"lumen.dev/sdk/relay"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "lumen:relay:"

const (
	logIndexBits = 20
	pageSize     = 256
)

var insertScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
redis.call('ZINCRBY', KEYS[5], 1, ARGV[4])
return 1
`)

// Store is a relay.Store over a Redis client.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ relay.Store = (*Store)(nil)

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Open connects to the Redis server at url (redis://...) and checks that it
// answers.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	s := New(redis.NewClient(opts), prefix)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return s, nil
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) rowsKey() string { return s.prefix + "rows" }
func (s *Store) allKey() string { return s.prefix + "idx:all" }
func (s *Store) topicKey(topic string) string { return s.prefix + "idx:topic:" + topic }
func (s *Store) authorKey(author string) string { return s.prefix + "idx:author:" + author }
func (s *Store) topicsKey() string { return s.prefix + "topics" }
func (s *Store) metaKey() string { return s.prefix + "meta" }

func score(r relay.Row) float64 {
	return float64(r.BlockNumber<<logIndexBits | uint64(r.LogIndex))
}

func (s *Store) Insert(ctx context.Context, r relay.Row) (bool, error) {
	if r.LogIndex >= 1<<logIndexBits {
		return false, fmt.Errorf("redisstore: log index %d out of range", r.LogIndex)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("failed to serialize event: %w", err)
	}

	keys := []string{
		s.rowsKey(),
		s.allKey(),
		s.topicKey(r.Topic),
		s.authorKey(strings.ToLower(r.Author)),
		s.topicsKey(),
	}
	n, err := insertScript.Run(ctx, s.rdb, keys,
		r.Key(), data, strconv.FormatFloat(score(r), 'f', -1, 64), r.Topic).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write event to Redis: %w", err)
	}
	return n == 1, nil
}

func (s *Store) Cursor(ctx context.Context, key string) (uint64, bool, error) {
	v, err := s.rdb.HGet(ctx, s.metaKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cursor from Redis: %w", err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cursor %q for %s: %w", v, key, err)
	}
	return n, true, nil
}

func (s *Store) SetCursor(ctx context.Context, key string, block uint64) error {
	if err := s.rdb.HSet(ctx, s.metaKey(), key, strconv.FormatUint(block, 10)).Err(); err != nil {
		return fmt.Errorf("failed to write cursor to Redis: %w", err)
	}
	return nil
}

func (s *Store) QueryEvents(ctx context.Context, q relay.Query) ([]relay.Row, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	index := s.allKey()
	switch {
	case q.Topic != "":
		index = s.topicKey(q.Topic)
	case q.Author != "":
		index = s.authorKey(q.Author)
	}

	out := make([]relay.Row, 0, q.Limit)
	for start := int64(0); len(out) < q.Limit; start += pageSize {
		keys, err := s.rdb.ZRevRange(ctx, index, start, start+pageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read index from Redis: %w", err)
		}
		if len(keys) == 0 {
			break
		}

		rows, err := s.rows(ctx, keys)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if q.Matches(r) {
				out = append(out, r)
				if len(out) == q.Limit {
					break
				}
			}
		}
		if len(keys) < pageSize {
			break
		}
	}
	return out, nil
}

func (s *Store) rows(ctx context.Context, keys []string) ([]relay.Row, error) {
	vals, err := s.rdb.HMGet(ctx, s.rowsKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from Redis: %w", err)
	}

	rows := make([]relay.Row, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r relay.Row
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("failed to deserialize event %s: %w", keys[i], err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (s *Store) QueryTopics(ctx context.Context, limit int) ([]relay.TopicCount, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.topicsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read topic counts from Redis: %w", err)
	}

	out := make([]relay.TopicCount, 0, len(zs))
	for _, z := range zs {
		topic, _ := z.Member.(string)
		out = append(out, relay.NewTopicCount(topic, int64(z.Score)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
