package nats

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

func TestSubject(t *testing.T) {
	p := &Publisher{prefix: "pod"}
	assert.Equal(t, "pod.orderbook.0xab", p.Subject(SubjectOrderbook, "0xab"))
	assert.Equal(t, "pod.auction_bids", p.Subject(SubjectAuctionBids, ""))

	bare := &Publisher{}
	assert.Equal(t, "bids.0xab", bare.Subject(SubjectBids, "0xab"))
}

func TestOrderbookMessageUsesDecimalStrings(t *testing.T) {
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	u := schema.OrderbookUpdate{
		ClobID:            common.HexToHash("0x" + strings.Repeat("ab", 32)),
		Bids:              []schema.PriceLevel{{Price: *big, Volume: *uint256.NewInt(3), MinimumExpiry: 9}},
		GroupingPrecision: *uint256.NewInt(1000),
		Timestamp:         5,
	}

	data, err := json.Marshal(NewOrderbookMessage(u))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), got["clob_id"])
	assert.Equal(t, "1000", got["grouping_precision"])
	bids := got["bids"].([]any)
	require.Len(t, bids, 1)
	assert.Equal(t, big.Dec(), bids[0].(map[string]any)["price"])
	assert.Equal(t, []any{}, got["asks"])
}

func TestBidsMessageKeepsGivenBids(t *testing.T) {
	ev := schema.BidEvent{
		ClobID:    common.HexToHash("0x01"),
		Timestamp: 3,
		Bids: []schema.ClobBid{
			{TxHash: common.HexToHash("0x0a"), Side: schema.SideBuy, Price: *uint256.NewInt(1)},
			{TxHash: common.HexToHash("0x0b"), Side: schema.SideSell, Price: *uint256.NewInt(2)},
		},
	}
	msg := NewBidsMessage(ev, ev.Bids[1:])
	require.Len(t, msg.Bids, 1)
	assert.Equal(t, "sell", msg.Bids[0].Side)
	assert.Equal(t, "2", msg.Bids[0].Price)
	assert.Equal(t, uint64(3), msg.Timestamp)
}
