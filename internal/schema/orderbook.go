package schema

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/tidwall/gjson"
)

// PriceLevel is one aggregated level of a book side.
type PriceLevel struct {
	Price         uint256.Int
	Volume        uint256.Int
	MinimumExpiry uint64
}

// OrderbookUpdate is a full snapshot of one CLOB. Bids are sorted by price
// descending and asks ascending.
type OrderbookUpdate struct {
	ClobID            common.Hash
	Bids              []PriceLevel
	Asks              []PriceLevel
	GroupingPrecision uint256.Int
	Timestamp         uint64
	NewBidsCount      uint64
}

// DecodeOrderbook decodes an orderbook_snapshot payload.
func DecodeOrderbook(raw []byte) (OrderbookUpdate, error) {
	f, err := root(raw)
	if err != nil {
		return OrderbookUpdate{}, err
	}

	u := OrderbookUpdate{
		ClobID:            f.hash("clob_id"),
		GroupingPrecision: f.u256("grouping_precision"),
		Timestamp:         f.uint64("timestamp"),
		NewBidsCount:      f.uint64("new_bids_count"),
	}
	buys := f.object("buys")
	sells := f.object("sells")
	if f.err != nil {
		return OrderbookUpdate{}, f.err
	}

	if u.Bids, err = priceLevels("buys", buys, false); err != nil {
		return OrderbookUpdate{}, err
	}
	if u.Asks, err = priceLevels("sells", sells, true); err != nil {
		return OrderbookUpdate{}, err
	}
	return u, nil
}

func priceLevels(side string, m gjson.Result, ascending bool) ([]PriceLevel, error) {
	var (
		levels []PriceLevel
		err    error
	)
	m.ForEach(func(key, tick gjson.Result) bool {
		price, perr := ParseUint256(key.Str)
		if perr != nil {
			err = fieldErr(side, key.Str, perr)
			return false
		}
		f := newFields(side+"."+key.Str+".", tick)
		lvl := PriceLevel{
			Price:         price,
			Volume:        f.u256("volume"),
			MinimumExpiry: f.uint64("minimum_expiry"),
		}
		if f.err != nil {
			err = f.err
			return false
		}
		levels = append(levels, lvl)
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(levels, func(i, j int) bool {
		c := levels[i].Price.Cmp(&levels[j].Price)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return levels, nil
}

func (u OrderbookUpdate) BestBid() (PriceLevel, bool) {
	if len(u.Bids) == 0 {
		return PriceLevel{}, false
	}
	return u.Bids[0], true
}

func (u OrderbookUpdate) BestAsk() (PriceLevel, bool) {
	if len(u.Asks) == 0 {
		return PriceLevel{}, false
	}
	return u.Asks[0], true
}

// Spread is best ask minus best bid. It is negative on a crossed book and
// nil when either side is empty.
func (u OrderbookUpdate) Spread() *big.Int {
	bid, okBid := u.BestBid()
	ask, okAsk := u.BestAsk()
	if !okBid || !okAsk {
		return nil
	}
	return new(big.Int).Sub(ask.Price.ToBig(), bid.Price.ToBig())
}

// MidPrice is the floor of the best bid and best ask average, or nil when
// either side is empty.
func (u OrderbookUpdate) MidPrice() *big.Int {
	bid, okBid := u.BestBid()
	ask, okAsk := u.BestAsk()
	if !okBid || !okAsk {
		return nil
	}
	sum := new(big.Int).Add(bid.Price.ToBig(), ask.Price.ToBig())
	return sum.Rsh(sum, 1)
}

func (u OrderbookUpdate) IsEmpty() bool {
	return len(u.Bids) == 0 && len(u.Asks) == 0
}

// Depth returns the number of bid and ask levels.
func (u OrderbookUpdate) Depth() (bids, asks int) {
	return len(u.Bids), len(u.Asks)
}
