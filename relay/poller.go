package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/internal/metrics"
	"lumen.dev/sdk/ledger"
)

var logger = log.New("lumen-relay")

const (
	defaultChunkSize      = 2000
	defaultPollInterval   = 2 * time.Second
	defaultRetryTimeout   = 30 * time.Second
	defaultBlockCacheSize = 4096
)

// Config configures a Poller.
type Config struct {
	ChainID uint64
	Kernel  common.Address
	// StartBlock is used when no cursor is saved. When nil the poller starts
	// BackfillBlocks behind the head.
	StartBlock     *uint64
	BackfillBlocks uint64
	// ChunkSize is the widest block range per log query. Default 2000.
	ChunkSize    uint64
	PollInterval time.Duration
	// RetryTimeout bounds the retries of one transient ledger or store call.
	RetryTimeout time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMetrics records poll metrics.
func WithMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// WithBroadcast calls fn for every newly inserted row.
func WithBroadcast(fn func(Row)) PollerOption {
	return func(p *Poller) { p.onRow = fn }
}

// WithBlockCacheSize sets how many block timestamps are cached.
func WithBlockCacheSize(n int) PollerOption {
	return func(p *Poller) { p.cacheSize = n }
}

// Poller copies ContextWritten events from the ledger into a Store.
type Poller struct {
	src       ledger.EventSource
	store     Store
	cfg       Config
	key       string
	metrics   *metrics.Metrics
	onRow     func(Row)
	cacheSize int
	times     gcache.Cache

	mu     sync.Mutex
	next   uint64
	inited bool
}

// NewPoller returns a poller reading src and writing store.
func NewPoller(src ledger.EventSource, store Store, cfg Config, opts ...PollerOption) *Poller {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = defaultRetryTimeout
	}

	p := &Poller{
		src:       src,
		store:     store,
		cfg:       cfg,
		key:       CursorKey(cfg.ChainID, cfg.Kernel),
		onRow:     func(Row) {},
		cacheSize: defaultBlockCacheSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.times = gcache.New(p.cacheSize).ARC().Build()

	return p
}

// CursorKey returns the store key of this poller's cursor.
func (p *Poller) CursorKey() string { return p.key }

// Next returns the next block to scan. It is only meaningful after Init.
func (p *Poller) Next() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Init resolves the first block to scan: the saved cursor, else the
// configured start block, else the head minus the backfill window.
func (p *Poller) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		saved uint64
		ok    bool
	)
	err := p.retry(ctx, "read cursor", func() error {
		var err error
		saved, ok, err = p.store.Cursor(ctx, p.key)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case ok:
		p.next = saved
	case p.cfg.StartBlock != nil:
		p.next = *p.cfg.StartBlock
	default:
		head, err := p.head(ctx)
		if err != nil {
			return err
		}
		if head > p.cfg.BackfillBlocks {
			p.next = head - p.cfg.BackfillBlocks
		}
	}
	p.inited = true

	logger.Info("Relay cursor resolved",
		logfields.WithBlock(p.next), logfields.WithChainID(p.cfg.ChainID), logfields.WithKernel(p.cfg.Kernel))

	return nil
}

// PollOnce scans from the cursor to the current head and returns the number
// of newly stored events. The cursor advances after each chunk, so a failed
// pass resumes where it stopped.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inited {
		return 0, errors.New("relay: poller not initialized")
	}

	head, err := p.head(ctx)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for p.next <= head {
		from := p.next
		to := from + p.cfg.ChunkSize - 1
		if to > head {
			to = head
		}

		n, err := p.scan(ctx, from, to)
		inserted += n
		if err != nil {
			return inserted, err
		}

		if err := p.retry(ctx, "save cursor", func() error {
			return p.store.SetCursor(ctx, p.key, to+1)
		}); err != nil {
			return inserted, err
		}
		p.next = to + 1
		p.metrics.Cursor(p.next)
	}

	return inserted, nil
}

func (p *Poller) scan(ctx context.Context, from, to uint64) (int, error) {
	var events []ledger.ContextEvent
	err := p.retry(ctx, "filter logs", func() error {
		var err error
		events, err = p.src.FilterContexts(ctx, from, to)
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("Scanned block range", logfields.WithBlockRange(from, to), logfields.WithTotal(len(events)))

	inserted := 0
	for _, ev := range events {
		if ev.Timestamp == 0 {
			ts, err := p.blockTime(ctx, ev.BlockNumber)
			if err != nil {
				return inserted, err
			}
			ev.Timestamp = ts
		}

		row := RowFromEvent(p.cfg.ChainID, ev)

		var ok bool
		err := p.retry(ctx, "insert event", func() error {
			var err error
			ok, err = p.store.Insert(ctx, row)
			return err
		})
		if err != nil {
			return inserted, err
		}
		p.metrics.EventIngested(ok)
		if !ok {
			continue
		}

		inserted++
		logger.Debug("Stored context event", logfields.WithEventKey(row.Key()), logfields.WithTopic(row.Topic))
		p.onRow(row)
	}

	return inserted, nil
}

func (p *Poller) head(ctx context.Context) (uint64, error) {
	var head uint64
	err := p.retry(ctx, "read head", func() error {
		var err error
		head, err = p.src.Head(ctx)
		return err
	})
	return head, err
}

func (p *Poller) blockTime(ctx context.Context, block uint64) (int64, error) {
	if v, err := p.times.Get(block); err == nil {
		return v.(int64), nil
	}

	var t time.Time
	err := p.retry(ctx, "read block time", func() error {
		var err error
		t, err = p.src.BlockTime(ctx, block)
		return err
	})
	if err != nil {
		return 0, err
	}

	ts := t.Unix()
	if err := p.times.Set(block, ts); err != nil {
		logger.Debug("Failed to cache block time", logfields.WithBlock(block), log.WithError(err))
	}
	return ts, nil
}

// retry runs op until it succeeds, fails with a non-transient error, or the
// retry timeout elapses.
func (p *Poller) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = p.cfg.RetryTimeout

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			err := op()
			if err != nil && !ledger.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			logger.Debug("Transient relay error, retrying", logfields.WithAttempt(attempt),
				logfields.WithDuration(d), log.WithError(fmt.Errorf("%s: %w", what, err)))
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Run initializes the cursor and polls until ctx is done. Failed passes are
// logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.tick(ctx); err != nil && ctx.Err() == nil {
			p.metrics.PollFailed()
			logger.Warn("Relay poll failed", log.WithError(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Relay poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	p.mu.Lock()
	inited := p.inited
	p.mu.Unlock()

	if !inited {
		if err := p.Init(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	n, err := p.PollOnce(ctx)
	if err != nil {
		return err
	}
	p.metrics.PollTime(time.Since(start))
	if n > 0 {
		logger.Info("Stored new context events", logfields.WithTotal(n), logfields.WithBlock(p.Next()))
	}
	return nil
}
