package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-pod-stream/config"
	"github.com/utrading/utrading-pod-stream/internal/cache"
	"github.com/utrading/utrading-pod-stream/internal/processor"
	"github.com/utrading/utrading-pod-stream/internal/ws"
	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

var ErrAlreadyStarted = errors.New("subscription manager already started")

const (
	defaultRecoveryInitial = 500 * time.Millisecond
	defaultRecoveryMax     = 30 * time.Second
)

// ArchiveCounter reports archived row counts for /status. *dao.BidDAO
// implements it.
type ArchiveCounter interface {
	CountClobBids() (int64, error)
	CountAuctionBids() (int64, error)
}

// Opt configures a SubscriptionManager.
type Opt func(*SubscriptionManager)

// WithRecoveryBackOff sets the retry delays used to reconnect after the
// connection's own reconnect policy has given up.
func WithRecoveryBackOff(initial, max time.Duration) Opt {
	return func(m *SubscriptionManager) {
		if initial > 0 {
			m.recoveryInitial = initial
		}
		if max > 0 {
			m.recoveryMax = max
		}
	}
}

// WithArchiveCounter adds archive row counts to GetStats.
func WithArchiveCounter(c ArchiveCounter) Opt {
	return func(m *SubscriptionManager) {
		m.archive = c
	}
}

// SubscriptionManager opens the configured streams on one connection and runs
// a consumer per stream on a worker pool. When the connection gives up
// reconnecting, it reconnects on its own and reopens every stream.
type SubscriptionManager struct {
	conn       *ws.Connection
	relay      config.Relay
	bufferSize int

	books   *cache.BookCache
	dedup   *cache.DedupCache
	archive ArchiveCounter

	orderbook *processor.OrderbookProcessor
	bids      *processor.BidProcessor
	auctions  *processor.AuctionBidProcessor

	recoveryInitial time.Duration
	recoveryMax     time.Duration

	pool       *ants.Pool
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	started    bool
	closers    []func()
	epoch      uint64
	recovering bool
	lost       chan struct{}
	supervised chan struct{}
	wg         sync.WaitGroup
	active     atomic.Int32
	recoveries atomic.Int64
}

// NewSubscriptionManager wires the processors. publisher and writer may be
// nil; pass a nil interface rather than a typed nil pointer.
func NewSubscriptionManager(
	conn *ws.Connection,
	relay config.Relay,
	bufferSize int,
	publisher processor.Publisher,
	writer *processor.BatchWriter,
	opts ...Opt,
) (*SubscriptionManager, error) {
	size := relay.BookCacheSize
	if size <= 0 {
		size = 256
	}
	books, err := cache.NewBookCache(size)
	if err != nil {
		return nil, fmt.Errorf("book cache: %w", err)
	}

	ttl := relay.DedupTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	dedup := cache.NewDedupCache(ttl)

	pool, err := ants.NewPool(conn.MaxSubscriptions())
	if err != nil {
		return nil, fmt.Errorf("consumer pool: %w", err)
	}

	m := &SubscriptionManager{
		conn:            conn,
		relay:           relay,
		bufferSize:      bufferSize,
		books:           books,
		dedup:           dedup,
		orderbook:       processor.NewOrderbookProcessor(books, publisher),
		bids:            processor.NewBidProcessor(dedup, publisher, writer),
		auctions:        processor.NewAuctionBidProcessor(dedup, publisher, writer),
		recoveryInitial: defaultRecoveryInitial,
		recoveryMax:     defaultRecoveryMax,
		pool:            pool,
		lost:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *SubscriptionManager) Deduper() *cache.DedupCache {
	return m.dedup
}

func (m *SubscriptionManager) Books() *cache.BookCache {
	return m.books
}

// Start subscribes every configured stream. On failure the streams opened so
// far are closed.
func (m *SubscriptionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.ctx, m.cancel = context.WithCancel(ctx)
	if err := m.open(m.ctx); err != nil {
		m.closeLocked()
		return err
	}

	m.supervised = make(chan struct{})
	goplus.Go(m.supervise)

	logger.Info().
		Int("orderbooks", len(m.relay.OrderbookIDs)).
		Int("bid_clobs", len(m.relay.BidIDs)).
		Bool("auction_bids", m.relay.AuctionBids).
		Int("subscriptions", m.conn.SubscriptionCount()).
		Msg("subscription manager started")
	return nil
}

func (m *SubscriptionManager) open(ctx context.Context) error {
	if len(m.relay.OrderbookIDs) > 0 {
		opts := []ws.SubscribeOpt{ws.WithBufferSize(m.bufferSize)}
		if m.relay.Depth > 0 {
			opts = append(opts, ws.WithDepth(m.relay.Depth))
		}
		st, err := m.conn.SubscribeOrderbook(ctx, m.relay.OrderbookIDs, opts...)
		if err != nil {
			return fmt.Errorf("subscribe orderbook: %w", err)
		}
		if err = run(m, st, m.orderbook.Handle); err != nil {
			return err
		}
	}

	if len(m.relay.BidIDs) > 0 {
		st, err := m.conn.SubscribeBids(ctx, m.relay.BidIDs, ws.WithBufferSize(m.bufferSize))
		if err != nil {
			return fmt.Errorf("subscribe bids: %w", err)
		}
		if err = run(m, st, m.bids.Handle); err != nil {
			return err
		}
	}

	if m.relay.AuctionBids {
		ids, err := m.relay.AuctionIDStrings()
		if err != nil {
			return err
		}
		st, err := m.conn.SubscribeAuctionBids(ctx, ws.WithBufferSize(m.bufferSize), ws.WithAuctionIDs(ids...))
		if err != nil {
			return fmt.Errorf("subscribe auction bids: %w", err)
		}
		if err = run(m, st, m.auctions.Handle); err != nil {
			return err
		}
	}
	return nil
}

// run hands st to the pool. A stream the pool cannot take is closed. Called
// with m.mu held.
func run[T any](m *SubscriptionManager, st *ws.Stream[T], handle func(T) error) error {
	epoch := m.epoch
	m.closers = append(m.closers, st.Close)
	m.wg.Add(1)
	err := m.pool.Submit(func() {
		m.active.Add(1)
		defer m.wg.Done()
		defer m.active.Add(-1)
		if err := consume(st, handle); errors.Is(err, ws.ErrReconnectExhausted) {
			m.markLost(epoch)
		}
	})
	if err != nil {
		m.wg.Done()
		st.Close()
		return fmt.Errorf("start %s consumer: %w", st.Channel(), err)
	}
	return nil
}

// consume drains st into handle and returns the stream's terminal error.
func consume[T any](st *ws.Stream[T], handle func(T) error) error {
	log := logger.With("consumer").With().Str("id", st.ID()).Str("channel", string(st.Channel())).Logger()
	log.Debug().Msg("consumer started")

	for ev, err := range st.All() {
		if err != nil {
			log.Error().Err(err).Uint64("dropped", st.Dropped()).Msg("stream ended")
			return err
		}
		if err = handle(ev); err != nil {
			log.Warn().Err(err).Msg("handle event failed")
		}
	}
	log.Info().Uint64("dropped", st.Dropped()).Msg("stream closed")
	return nil
}

// markLost requests one recovery per epoch; later reports from the same set
// of streams are ignored.
func (m *SubscriptionManager) markLost(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.recovering || m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	m.recovering = true
	select {
	case m.lost <- struct{}{}:
	default:
	}
}

func (m *SubscriptionManager) supervise() {
	defer close(m.supervised)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.lost:
		}
		if err := m.recoverStreams(m.ctx); err != nil {
			if m.ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("reopen streams failed")
		}
	}
}

// recoverStreams reconnects after the connection gave up and reopens every stream.
// It retries until the connect succeeds or ctx is cancelled.
func (m *SubscriptionManager) recoverStreams(ctx context.Context) error {
	m.mu.Lock()
	m.closeStreamsLocked()
	m.mu.Unlock()
	m.wg.Wait()

	logger.Warn().Str("url", m.conn.URL()).Msg("node connection lost, recovering")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.recoveryInitial
	b.MaxInterval = m.recoveryMax
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.conn.Connect(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", d).Msg("recover node connection failed, retrying")
		}),
	)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.epoch++
	m.recovering = false
	if err = m.open(ctx); err != nil {
		m.closeStreamsLocked()
		return err
	}
	n := m.recoveries.Add(1)
	logger.Info().Int64("recoveries", n).Int("subscriptions", m.conn.SubscriptionCount()).Msg("streams reopened")
	return nil
}

// Close stops every consumer and waits for them to return.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	m.closeLocked()
	supervised := m.supervised
	m.mu.Unlock()

	if supervised != nil {
		<-supervised
	}
	m.wg.Wait()
	m.pool.Release()
}

func (m *SubscriptionManager) closeLocked() {
	if m.cancel != nil {
		m.cancel()
	}
	m.closeStreamsLocked()
}

func (m *SubscriptionManager) closeStreamsLocked() {
	for _, c := range m.closers {
		c()
	}
	m.closers = nil
}

// Running reports how many consumers are active.
func (m *SubscriptionManager) Running() int {
	return int(m.active.Load())
}

// GetStats merges connection, consumer, cache and archive stats.
func (m *SubscriptionManager) GetStats() map[string]any {
	stats := m.conn.GetStats()
	stats["consumers_running"] = m.Running()
	stats["pool_workers"] = m.pool.Running()
	stats["recoveries"] = m.recoveries.Load()
	stats["books"] = m.books.Snapshot()
	for k, v := range m.dedup.Stats() {
		stats["dedup_"+k] = v
	}
	if m.archive != nil {
		m.archiveStats(stats)
	}
	return stats
}

func (m *SubscriptionManager) archiveStats(stats map[string]any) {
	clob, err := m.archive.CountClobBids()
	if err != nil {
		logger.Warn().Err(err).Msg("count archived clob bids failed")
		stats["archive_error"] = err.Error()
		return
	}
	auction, err := m.archive.CountAuctionBids()
	if err != nil {
		logger.Warn().Err(err).Msg("count archived auction bids failed")
		stats["archive_error"] = err.Error()
		return
	}
	stats["archive_clob_bids"] = clob
	stats["archive_auction_bids"] = auction
}
