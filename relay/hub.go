package relay

import (
	"sync"

	"github.com/google/uuid"

	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/internal/metrics"
)

const defaultSubscriberBuffer = 64

// Subscription receives broadcast rows until cancelled.
type Subscription struct {
	ID string
	C  <-chan Row

	cancel func()
}

// Cancel removes the subscription and closes C. It is safe to call twice.
func (s *Subscription) Cancel() { s.cancel() }

// Hub fans rows out to stream subscribers. A subscriber that falls behind
// by more than its buffer misses rows rather than blocking the poller.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]chan Row
	buffer  int
	metrics *metrics.Metrics
}

// NewHub returns a hub whose subscribers buffer up to buffer rows. A buffer
// <= 0 uses the default of 64.
func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[string]chan Row), buffer: buffer, metrics: m}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	id := uuid.New().String()
	ch := make(chan Row, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.Subscribers(n)
	logger.Debug("Stream subscriber added", logfields.WithSubscriber(id), logfields.WithTotal(n))

	var once sync.Once
	return &Subscription{
		ID: id,
		C:  ch,
		cancel: func() {
			once.Do(func() { h.remove(id) })
		},
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.Subscribers(n)
	logger.Debug("Stream subscriber removed", logfields.WithSubscriber(id), logfields.WithTotal(n))
}

// Broadcast delivers r to every subscriber without blocking.
func (h *Hub) Broadcast(r Row) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- r:
		default:
			logger.Warn("Stream subscriber is full, dropping event",
				logfields.WithSubscriber(id), logfields.WithEventKey(r.Key()))
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
