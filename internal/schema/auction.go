package schema

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// AuctionBid is a bid placed into an auction.
type AuctionBid struct {
	TxHash    common.Hash
	Bidder    common.Address
	AuctionID uint256.Int
	Value     uint256.Int
	Data      hexutil.Bytes
	Deadline  uint64
}

type AuctionBidEvent struct {
	Timestamp uint64
	Bids      []AuctionBid
}

func (e AuctionBidEvent) Count() int {
	return len(e.Bids)
}

// DecodeAuctionBids decodes an auction_bids_added payload.
func DecodeAuctionBids(raw []byte) (AuctionBidEvent, error) {
	f, err := root(raw)
	if err != nil {
		return AuctionBidEvent{}, err
	}
	ev := AuctionBidEvent{Timestamp: f.uint64("timestamp")}
	items := f.array("bids")
	if f.err != nil {
		return AuctionBidEvent{}, f.err
	}

	ev.Bids = make([]AuctionBid, 0, len(items))
	for i, item := range items {
		b := newFields(indexPrefix("bids", i), item)
		bid := AuctionBid{
			TxHash:    b.hash("tx_hash"),
			Bidder:    b.address("bidder"),
			AuctionID: b.u256("auction_id"),
			Value:     b.u256("value"),
			Data:      b.data("data"),
			Deadline:  b.uint64("deadline"),
		}
		if b.err != nil {
			return AuctionBidEvent{}, b.err
		}
		ev.Bids = append(ev.Bids, bid)
	}
	return ev, nil
}

// OnlyAuctions keeps the bids whose auction id is in ids. The receiver is
// left untouched.
func (e AuctionBidEvent) OnlyAuctions(ids ...uint256.Int) AuctionBidEvent {
	out := AuctionBidEvent{Timestamp: e.Timestamp, Bids: make([]AuctionBid, 0, len(e.Bids))}
	for _, b := range e.Bids {
		for i := range ids {
			if b.AuctionID.Eq(&ids[i]) {
				out.Bids = append(out.Bids, b)
				break
			}
		}
	}
	return out
}

func indexPrefix(name string, i int) string {
	return name + "." + strconv.Itoa(i) + "."
}
