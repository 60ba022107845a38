package processor

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-pod-stream/internal/cache"
	"github.com/utrading/utrading-pod-stream/internal/dao"
	"github.com/utrading/utrading-pod-stream/internal/models"
	"github.com/utrading/utrading-pod-stream/internal/nats"
	"github.com/utrading/utrading-pod-stream/internal/schema"
)

func openBidDAO(t *testing.T) *dao.BidDAO {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "archive.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ClobBidRecord{}, &models.AuctionBidRecord{}))
	return dao.NewBidDAO(db)
}

func txHash(b string) common.Hash {
	return common.HexToHash("0x" + strings.Repeat(b, 32))
}

func clobRecord(b string) ClobBidItem {
	return ClobBidItem{Record: &models.ClobBidRecord{
		TxHash: txHash(b).Hex(), ClobID: txHash("aa").Hex(), Bidder: "0x1", Side: "buy", Price: "1", Volume: "1",
	}}
}

type fakePublisher struct {
	mu       sync.Mutex
	books    []nats.OrderbookMessage
	bids     []nats.BidsMessage
	auctions []nats.AuctionBidsMessage
	err      error
}

func (p *fakePublisher) PublishOrderbook(msg nats.OrderbookMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books = append(p.books, msg)
	return p.err
}

func (p *fakePublisher) PublishBids(msg nats.BidsMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bids = append(p.bids, msg)
	return p.err
}

func (p *fakePublisher) PublishAuctionBids(msg nats.AuctionBidsMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auctions = append(p.auctions, msg)
	return p.err
}

func countClob(t *testing.T, d *dao.BidDAO) int64 {
	t.Helper()
	n, err := d.CountClobBids()
	if err != nil {
		t.Logf("count clob bids: %v", err)
		return -1
	}
	return n
}

func TestBatchWriterStartStop(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: time.Hour})
	w.Start()

	require.NoError(t, w.Add(clobRecord("01")))
	require.NoError(t, w.Add(clobRecord("02")))
	w.Stop()
	w.Stop()

	assert.Equal(t, int64(2), countClob(t, d), "stop flushes what is buffered")
	assert.ErrorIs(t, w.Add(clobRecord("03")), ErrWriterStopped)
}

func TestBatchWriterBatchSizeTrigger(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 3, FlushInterval: time.Hour})
	w.Start()
	defer w.Stop()

	for _, b := range []string{"01", "02", "03"} {
		require.NoError(t, w.Add(clobRecord(b)))
	}
	assert.Eventually(t, func() bool { return countClob(t, d) == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestBatchWriterTimerFlush(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Add(clobRecord("01")))
	require.NoError(t, w.Add(AuctionBidItem{Record: &models.AuctionBidRecord{
		TxHash: txHash("02").Hex(), AuctionID: "7", Bidder: "0x2", Value: "5", Data: "0x",
	}}))

	assert.Eventually(t, func() bool {
		a, err := d.CountAuctionBids()
		return err == nil && a == 1 && countClob(t, d) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBatchWriterCollapsesDuplicateKeys(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: time.Hour})
	w.Start()

	require.NoError(t, w.Add(clobRecord("01")))
	require.NoError(t, w.Add(clobRecord("01")))
	w.Stop()

	assert.Equal(t, int64(1), countClob(t, d))
}

func TestBatchWriterQueueFull(t *testing.T) {
	w := NewBatchWriter(openBidDAO(t), &BatchWriterConfig{MaxQueueSize: 2})

	require.NoError(t, w.Add(clobRecord("01")))
	require.NoError(t, w.Add(clobRecord("02")))
	assert.ErrorIs(t, w.Add(clobRecord("03")), ErrQueueFull)
	assert.Equal(t, 2, w.Pending())
}

func TestBatchWriterGracefulShutdown(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: time.Hour})
	w.Start()

	require.NoError(t, w.Add(clobRecord("01")))
	require.NoError(t, w.GracefulShutdown(5*time.Second))
	assert.Equal(t, int64(1), countClob(t, d))
}

func bidEvent(hashes ...string) schema.BidEvent {
	ev := schema.BidEvent{ClobID: txHash("aa"), Timestamp: 10}
	for _, h := range hashes {
		ev.Bids = append(ev.Bids, schema.ClobBid{
			TxHash: txHash(h),
			Volume: *uint256.NewInt(2),
			Price:  *uint256.NewInt(3),
			Side:   schema.SideBuy,
		})
	}
	return ev
}

func TestBidProcessorSkipsSeenBids(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: time.Hour})
	w.Start()
	pub := &fakePublisher{}
	p := NewBidProcessor(cache.NewDedupCache(time.Minute), pub, w)

	require.NoError(t, p.Handle(bidEvent("01", "02")))
	require.NoError(t, p.Handle(bidEvent("02", "03")))
	require.NoError(t, p.Handle(bidEvent("03")))
	w.Stop()

	require.Len(t, pub.bids, 2)
	assert.Len(t, pub.bids[0].Bids, 2)
	require.Len(t, pub.bids[1].Bids, 1)
	assert.Equal(t, txHash("03").Hex(), pub.bids[1].Bids[0].TxHash)
	assert.Equal(t, int64(3), countClob(t, d))
}

func TestBidProcessorWithoutOutputs(t *testing.T) {
	p := NewBidProcessor(cache.NewDedupCache(time.Minute), nil, nil)
	assert.NoError(t, p.Handle(bidEvent("01")))
}

func TestBidProcessorReportsPublishError(t *testing.T) {
	boom := errors.New("nats down")
	p := NewBidProcessor(cache.NewDedupCache(time.Minute), &fakePublisher{err: boom}, nil)
	assert.ErrorIs(t, p.Handle(bidEvent("01")), boom)
}

func TestAuctionBidProcessor(t *testing.T) {
	d := openBidDAO(t)
	w := NewBatchWriter(d, &BatchWriterConfig{BatchSize: 100, FlushInterval: time.Hour})
	w.Start()
	pub := &fakePublisher{}
	p := NewAuctionBidProcessor(cache.NewDedupCache(time.Minute), pub, w)

	ev := schema.AuctionBidEvent{Timestamp: 5, Bids: []schema.AuctionBid{
		{TxHash: txHash("01"), AuctionID: *uint256.NewInt(7), Value: *uint256.NewInt(9)},
		{TxHash: txHash("01"), AuctionID: *uint256.NewInt(7), Value: *uint256.NewInt(9)},
	}}
	require.NoError(t, p.Handle(ev))
	w.Stop()

	require.Len(t, pub.auctions, 1)
	assert.Len(t, pub.auctions[0].Bids, 1)
	n, err := d.CountAuctionBids()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOrderbookProcessorSkipsStaleSnapshots(t *testing.T) {
	books, err := cache.NewBookCache(8)
	require.NoError(t, err)
	pub := &fakePublisher{}
	p := NewOrderbookProcessor(books, pub)

	require.NoError(t, p.Handle(schema.OrderbookUpdate{ClobID: txHash("aa"), Timestamp: 2}))
	require.NoError(t, p.Handle(schema.OrderbookUpdate{ClobID: txHash("aa"), Timestamp: 1}))

	assert.Len(t, pub.books, 1)
	got, ok := books.Get(txHash("aa").Hex())
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Timestamp)
}
