// Package memstore is an in-memory relay.Store for tests and single-process
// relays that do not need to survive restarts.
package memstore

import (
	"context"
	"sort"
	"sync"

	"lumen.dev/sdk/relay"
)

// Store is an in-memory relay.Store. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	rows    []relay.Row
	keys    map[string]struct{}
	counts  map[string]int64
	cursors map[string]uint64
}

var _ relay.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		keys:    make(map[string]struct{}),
		counts:  make(map[string]int64),
		cursors: make(map[string]uint64),
	}
}

func (s *Store) Insert(_ context.Context, r relay.Row) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	s.rows = append(s.rows, r)
	s.counts[r.Topic]++
	return true, nil
}

func (s *Store) Cursor(_ context.Context, key string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cursors[key]
	return v, ok, nil
}

func (s *Store) SetCursor(_ context.Context, key string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[key] = block
	return nil
}

func (s *Store) QueryEvents(_ context.Context, q relay.Query) ([]relay.Row, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []relay.Row
	for _, r := range s.rows {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return relay.Newer(out[i], out[j]) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) QueryTopics(_ context.Context, limit int) ([]relay.TopicCount, error) {
	s.mu.RLock()
	out := make([]relay.TopicCount, 0, len(s.counts))
	for topic, n := range s.counts {
		out = append(out, relay.NewTopicCount(topic, n))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
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

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
