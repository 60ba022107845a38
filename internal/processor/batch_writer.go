package processor

import (
	"errors"
	"sync"
	"time"

	"github.com/utrading/utrading-pod-stream/internal/models"
	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/pkg/concurrent"
	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

const (
	tableClobBids    = "pod_clob_bids"
	tableAuctionBids = "pod_auction_bids"
)

// BatchItem is one row waiting to be archived.
type BatchItem interface {
	TableName() string
	DedupKey() string
}

type ClobBidItem struct {
	Record *models.ClobBidRecord
}

func (i ClobBidItem) TableName() string { return tableClobBids }
func (i ClobBidItem) DedupKey() string  { return "cb:" + i.Record.TxHash }

type AuctionBidItem struct {
	Record *models.AuctionBidRecord
}

func (i AuctionBidItem) TableName() string { return tableAuctionBids }
func (i AuctionBidItem) DedupKey() string  { return "ab:" + i.Record.TxHash }

// BidStore persists archive rows.
type BidStore interface {
	BatchInsertClobBids(rows []*models.ClobBidRecord) error
	BatchInsertAuctionBids(rows []*models.AuctionBidRecord) error
}

type BatchWriterConfig struct {
	BatchSize     int           // default 100
	FlushInterval time.Duration // default 100ms
	MaxQueueSize  int           // default 10000
}

// BatchWriter buffers archive rows and writes them in batches, on size or on
// a timer, whichever comes first. Rows sharing a dedup key collapse into one.
type BatchWriter struct {
	config  BatchWriterConfig
	store   BidStore
	queue   chan BatchItem
	buffers concurrent.Map[string, BatchItem]
	flushMu sync.Mutex
	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewBatchWriter(store BidStore, config *BatchWriterConfig) *BatchWriter {
	cfg := BatchWriterConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 10000
	}

	return &BatchWriter{
		config: cfg,
		store:  store,
		queue:  make(chan BatchItem, cfg.MaxQueueSize),
		done:   make(chan struct{}),
	}
}

func (w *BatchWriter) Start() {
	w.wg.Add(2)
	goplus.Go(w.receiveLoop)
	goplus.Go(w.flushLoop)
}

func (w *BatchWriter) receiveLoop() {
	defer w.wg.Done()
	for {
		select {
		case item := <-w.queue:
			w.buffers.Store(item.DedupKey(), item)
			if w.buffers.Len() >= int64(w.config.BatchSize) {
				w.flushAll()
			}
		case <-w.done:
			for {
				select {
				case item := <-w.queue:
					w.buffers.Store(item.DedupKey(), item)
				default:
					return
				}
			}
		}
	}
}

func (w *BatchWriter) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flushAll()
		case <-w.done:
			return
		}
	}
}

// flushAll writes everything buffered, grouped per table.
func (w *BatchWriter) flushAll() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	var (
		clob    []*models.ClobBidRecord
		auction []*models.AuctionBidRecord
	)
	for key := range w.buffers.All() {
		item, ok := w.buffers.LoadAndDelete(key)
		if !ok {
			continue
		}
		switch it := item.(type) {
		case ClobBidItem:
			clob = append(clob, it.Record)
		case AuctionBidItem:
			auction = append(auction, it.Record)
		default:
			logger.Warn().Str("table", item.TableName()).Msg("unsupported table for batch insert")
		}
	}

	if len(clob) > 0 {
		w.write(tableClobBids, len(clob), func() error { return w.store.BatchInsertClobBids(clob) })
	}
	if len(auction) > 0 {
		w.write(tableAuctionBids, len(auction), func() error { return w.store.BatchInsertAuctionBids(auction) })
	}
}

func (w *BatchWriter) write(table string, n int, insert func() error) {
	start := time.Now()
	err := insert()
	monitor.ObserveBatchWrite(n, time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Str("table", table).Int("count", n).Msg("batch insert failed")
		return
	}
	logger.Debug().Str("table", table).Int("count", n).Msg("batch insert success")
}

func (w *BatchWriter) Add(item BatchItem) error {
	select {
	case <-w.done:
		return ErrWriterStopped
	default:
	}
	select {
	case w.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports rows buffered but not yet written.
func (w *BatchWriter) Pending() int {
	return int(w.buffers.Len()) + len(w.queue)
}

// Stop drains the queue and writes everything still buffered.
func (w *BatchWriter) Stop() {
	w.stopped.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.flushAll()
	})
}

// GracefulShutdown is Stop bounded by timeout.
func (w *BatchWriter) GracefulShutdown(timeout time.Duration) error {
	done := make(chan struct{})
	goplus.Go(func() {
		w.Stop()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Int("pending", w.Pending()).Msg("batch writer shutdown timeout")
		return ErrShutdownTimeout
	}
}

var (
	ErrQueueFull       = errors.New("batch writer queue full")
	ErrWriterStopped   = errors.New("batch writer stopped")
	ErrShutdownTimeout = errors.New("shutdown timeout")
)
