package schema

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ClobBid is a single bid accepted into a CLOB.
type ClobBid struct {
	TxHash  common.Hash
	Bidder  common.Address
	Volume  uint256.Int
	Price   uint256.Int
	Side    Side
	StartTs uint64
	EndTs   uint64
	Nonce   uint64
}

// BidEvent carries the bids added to one CLOB, in node order.
type BidEvent struct {
	ClobID    common.Hash
	Timestamp uint64
	Bids      []ClobBid
}

// DecodeBids decodes a clob_bids_added payload.
func DecodeBids(raw []byte) (BidEvent, error) {
	f, err := root(raw)
	if err != nil {
		return BidEvent{}, err
	}
	ev := BidEvent{
		ClobID:    f.hash("clob_id"),
		Timestamp: f.uint64("timestamp"),
	}
	items := f.array("bids")
	if f.err != nil {
		return BidEvent{}, f.err
	}

	ev.Bids = make([]ClobBid, 0, len(items))
	for i, item := range items {
		b := newFields(indexPrefix("bids", i), item)
		bid := ClobBid{
			TxHash:  b.hash("tx_hash"),
			Bidder:  b.address("bidder"),
			Volume:  b.u256("volume"),
			Price:   b.u256("price"),
			Side:    Side(b.str("side")),
			StartTs: b.uint64("start_ts"),
			EndTs:   b.uint64("end_ts"),
			Nonce:   b.uint64("nonce"),
		}
		if b.err != nil {
			return BidEvent{}, b.err
		}
		if bid.Side != SideBuy && bid.Side != SideSell {
			return BidEvent{}, fieldErr(indexPrefix("bids", i)+"side", string(bid.Side), errSide)
		}
		ev.Bids = append(ev.Bids, bid)
	}
	return ev, nil
}
