package models

import "github.com/utrading/utrading-pod-stream/internal/schema"

// NewClobBidRecords flattens a bid event into archive rows.
func NewClobBidRecords(ev schema.BidEvent) []*ClobBidRecord {
	out := make([]*ClobBidRecord, 0, len(ev.Bids))
	clob := ev.ClobID.Hex()
	for _, b := range ev.Bids {
		out = append(out, &ClobBidRecord{
			TxHash:  b.TxHash.Hex(),
			ClobID:  clob,
			Bidder:  b.Bidder.Hex(),
			Side:    string(b.Side),
			Price:   b.Price.Dec(),
			Volume:  b.Volume.Dec(),
			StartTs: b.StartTs,
			EndTs:   b.EndTs,
			Nonce:   b.Nonce,
			EventTs: ev.Timestamp,
		})
	}
	return out
}

func NewAuctionBidRecords(ev schema.AuctionBidEvent) []*AuctionBidRecord {
	out := make([]*AuctionBidRecord, 0, len(ev.Bids))
	for _, b := range ev.Bids {
		out = append(out, &AuctionBidRecord{
			TxHash:    b.TxHash.Hex(),
			AuctionID: b.AuctionID.Dec(),
			Bidder:    b.Bidder.Hex(),
			Value:     b.Value.Dec(),
			Data:      b.Data.String(),
			Deadline:  b.Deadline,
			EventTs:   ev.Timestamp,
		})
	}
	return out
}
