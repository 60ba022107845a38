package processor

import (
	"errors"

	"github.com/utrading/utrading-pod-stream/internal/cache"
	"github.com/utrading/utrading-pod-stream/internal/models"
	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/internal/nats"
	"github.com/utrading/utrading-pod-stream/internal/schema"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// Publisher is the relay side. *nats.Publisher implements it.
type Publisher interface {
	PublishOrderbook(msg nats.OrderbookMessage) error
	PublishBids(msg nats.BidsMessage) error
	PublishAuctionBids(msg nats.AuctionBidsMessage) error
}

// OrderbookProcessor keeps the book cache current and relays snapshots.
// A nil publisher disables relaying.
type OrderbookProcessor struct {
	books     *cache.BookCache
	publisher Publisher
}

func NewOrderbookProcessor(books *cache.BookCache, publisher Publisher) *OrderbookProcessor {
	return &OrderbookProcessor{books: books, publisher: publisher}
}

func (p *OrderbookProcessor) Handle(u schema.OrderbookUpdate) error {
	if !p.books.Update(u) {
		logger.Debug().Str("clob_id", u.ClobID.Hex()).Uint64("timestamp", u.Timestamp).Msg("stale orderbook snapshot skipped")
		return nil
	}
	if p.publisher == nil {
		return nil
	}
	return p.publisher.PublishOrderbook(nats.NewOrderbookMessage(u))
}

// BidProcessor drops bids already relayed, then publishes and archives the
// rest. A nil publisher or writer disables that output.
type BidProcessor struct {
	dedup     *cache.DedupCache
	publisher Publisher
	writer    *BatchWriter
}

func NewBidProcessor(dedup *cache.DedupCache, publisher Publisher, writer *BatchWriter) *BidProcessor {
	return &BidProcessor{dedup: dedup, publisher: publisher, writer: writer}
}

func (p *BidProcessor) Handle(ev schema.BidEvent) error {
	fresh := make([]schema.ClobBid, 0, len(ev.Bids))
	for _, b := range ev.Bids {
		if p.dedup.SeenOrMark(b.TxHash.Hex()) {
			monitor.IncDedupHits("bids")
			continue
		}
		fresh = append(fresh, b)
	}
	if len(fresh) == 0 {
		return nil
	}

	var errs []error
	if p.publisher != nil {
		errs = append(errs, p.publisher.PublishBids(nats.NewBidsMessage(ev, fresh)))
	}
	if p.writer != nil {
		ev.Bids = fresh
		for _, r := range models.NewClobBidRecords(ev) {
			errs = append(errs, p.writer.Add(ClobBidItem{Record: r}))
		}
	}
	return errors.Join(errs...)
}

type AuctionBidProcessor struct {
	dedup     *cache.DedupCache
	publisher Publisher
	writer    *BatchWriter
}

func NewAuctionBidProcessor(dedup *cache.DedupCache, publisher Publisher, writer *BatchWriter) *AuctionBidProcessor {
	return &AuctionBidProcessor{dedup: dedup, publisher: publisher, writer: writer}
}

func (p *AuctionBidProcessor) Handle(ev schema.AuctionBidEvent) error {
	fresh := make([]schema.AuctionBid, 0, len(ev.Bids))
	for _, b := range ev.Bids {
		if p.dedup.SeenOrMark(b.TxHash.Hex()) {
			monitor.IncDedupHits("auction_bids")
			continue
		}
		fresh = append(fresh, b)
	}
	if len(fresh) == 0 {
		return nil
	}

	var errs []error
	if p.publisher != nil {
		errs = append(errs, p.publisher.PublishAuctionBids(nats.NewAuctionBidsMessage(ev, fresh)))
	}
	if p.writer != nil {
		ev.Bids = fresh
		for _, r := range models.NewAuctionBidRecords(ev) {
			errs = append(errs, p.writer.Add(AuctionBidItem{Record: r}))
		}
	}
	return errors.Join(errs...)
}
