package nats

import (
	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// Wire DTOs. Integers are decimal strings; hashes and addresses are 0x hex.

type PriceLevel struct {
	Price         string `json:"price"`
	Volume        string `json:"volume"`
	MinimumExpiry uint64 `json:"minimum_expiry"`
}

type OrderbookMessage struct {
	ClobID            string       `json:"clob_id"`
	Bids              []PriceLevel `json:"bids"`
	Asks              []PriceLevel `json:"asks"`
	GroupingPrecision string       `json:"grouping_precision"`
	Timestamp         uint64       `json:"timestamp"`
	NewBidsCount      uint64       `json:"new_bids_count"`
}

type ClobBid struct {
	TxHash  string `json:"tx_hash"`
	Bidder  string `json:"bidder"`
	Volume  string `json:"volume"`
	Price   string `json:"price"`
	Side    string `json:"side"`
	StartTs uint64 `json:"start_ts"`
	EndTs   uint64 `json:"end_ts"`
	Nonce   uint64 `json:"nonce"`
}

type BidsMessage struct {
	ClobID    string    `json:"clob_id"`
	Timestamp uint64    `json:"timestamp"`
	Bids      []ClobBid `json:"bids"`
}

type AuctionBid struct {
	TxHash    string `json:"tx_hash"`
	Bidder    string `json:"bidder"`
	AuctionID string `json:"auction_id"`
	Value     string `json:"value"`
	Data      string `json:"data"`
	Deadline  uint64 `json:"deadline"`
}

type AuctionBidsMessage struct {
	Timestamp uint64       `json:"timestamp"`
	Bids      []AuctionBid `json:"bids"`
}

func levels(in []schema.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, PriceLevel{Price: l.Price.Dec(), Volume: l.Volume.Dec(), MinimumExpiry: l.MinimumExpiry})
	}
	return out
}

func NewOrderbookMessage(u schema.OrderbookUpdate) OrderbookMessage {
	return OrderbookMessage{
		ClobID:            u.ClobID.Hex(),
		Bids:              levels(u.Bids),
		Asks:              levels(u.Asks),
		GroupingPrecision: u.GroupingPrecision.Dec(),
		Timestamp:         u.Timestamp,
		NewBidsCount:      u.NewBidsCount,
	}
}

// NewBidsMessage keeps only the given bids, which callers have already
// deduplicated.
func NewBidsMessage(ev schema.BidEvent, bids []schema.ClobBid) BidsMessage {
	msg := BidsMessage{ClobID: ev.ClobID.Hex(), Timestamp: ev.Timestamp, Bids: make([]ClobBid, 0, len(bids))}
	for _, b := range bids {
		msg.Bids = append(msg.Bids, ClobBid{
			TxHash:  b.TxHash.Hex(),
			Bidder:  b.Bidder.Hex(),
			Volume:  b.Volume.Dec(),
			Price:   b.Price.Dec(),
			Side:    string(b.Side),
			StartTs: b.StartTs,
			EndTs:   b.EndTs,
			Nonce:   b.Nonce,
		})
	}
	return msg
}

func NewAuctionBidsMessage(ev schema.AuctionBidEvent, bids []schema.AuctionBid) AuctionBidsMessage {
	msg := AuctionBidsMessage{Timestamp: ev.Timestamp, Bids: make([]AuctionBid, 0, len(bids))}
	for _, b := range bids {
		msg.Bids = append(msg.Bids, AuctionBid{
			TxHash:    b.TxHash.Hex(),
			Bidder:    b.Bidder.Hex(),
			AuctionID: b.AuctionID.Dec(),
			Value:     b.Value.Dec(),
			Data:      b.Data.String(),
			Deadline:  b.Deadline,
		})
	}
	return msg
}
