package ws

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeErrorIsIsolated(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	broken, err := c.SubscribeOrderbook(ctx, []string{clobA})
	require.NoError(t, err)
	healthy, err := c.SubscribeOrderbook(ctx, []string{clobB})
	require.NoError(t, err)

	malformed := `{"type":"orderbook_snapshot","clob_id":"` + clobA + `","buys":{"1":{"volume":"-3","minimum_expiry":0}},"sells":{},"grouping_precision":"1","timestamp":1,"new_bids_count":0}`
	d.last().deliver(malformed)
	d.last().deliver(snapshot(clobB, 2))

	_, err = recvWithin(t, broken, time.Second)
	require.ErrorIs(t, err, ErrDecode)

	got, err := recvWithin(t, healthy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, clobB, got.ClobID.Hex())
	assert.Equal(t, uint64(2), got.Timestamp)

	assert.Equal(t, 1, c.SubscriptionCount())
	unsubs := d.last().ofType(msgUnsubscribe)
	require.Len(t, unsubs, 1)
	assert.Equal(t, broken.ID(), unsubs[0].ID)
}

func TestRoutingByChannelAndFilter(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	all, err := c.SubscribeOrderbook(ctx, nil)
	require.NoError(t, err)
	onlyA, err := c.SubscribeOrderbook(ctx, []string{strings.ToUpper(clobA[2:])})
	require.NoError(t, err)
	bids, err := c.SubscribeBids(ctx, nil)
	require.NoError(t, err)

	d.last().deliver(snapshot(clobB, 1))
	d.last().deliver(snapshot(clobA, 2))
	d.last().deliver(`{"type":"clob_bids_added","clob_id":"` + clobA + `","timestamp":3,"bids":[]}`)
	d.last().deliver(`{"type":"trades","clob_id":"` + clobA + `"}`)
	d.last().deliver(`{"type":"subscribed","id":"sub-1","channel":"orderbook"}`)

	first, err := recvWithin(t, all, time.Second)
	require.NoError(t, err)
	second, err := recvWithin(t, all, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, []uint64{first.Timestamp, second.Timestamp})

	got, err := recvWithin(t, onlyA, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Timestamp)

	ev, err := recvWithin(t, bids, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.Timestamp)
	assert.Empty(t, ev.Bids)

	assert.Zero(t, all.Dropped())
	assert.Equal(t, 3, c.SubscriptionCount())
}

func TestAuctionFilterIsClientSide(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	filtered, err := c.SubscribeAuctionBids(ctx, WithAuctionIDs("0x6"))
	require.NoError(t, err)
	everything, err := c.SubscribeAuctionBids(ctx)
	require.NoError(t, err)

	subs := d.last().ofType(msgSubscribe)
	require.Len(t, subs, 2)
	assert.Nil(t, subs[0].Params, "auction filter is not sent to the node")

	d.last().deliver(auctionFrame("5"))
	d.last().deliver(auctionFrame("5", "6"))

	ev, err := recvWithin(t, filtered, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, ev.Count())
	assert.Equal(t, *uint256.NewInt(6), ev.Bids[0].AuctionID)

	first, err := recvWithin(t, everything, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count())
	second, err := recvWithin(t, everything, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count())
}

func TestOrderbookSubscribeParams(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.SubscribeOrderbook(ctx, []string{clobA}, WithDepth(25))
	require.NoError(t, err)
	_, err = c.SubscribeOrderbook(ctx, nil)
	require.NoError(t, err)

	subs := d.last().ofType(msgSubscribe)
	require.Len(t, subs, 2)
	assert.Equal(t, map[string]any{"depth": float64(25), "clob_ids": []any{clobA}}, subs[0].Params)
	assert.Equal(t, map[string]any{"depth": float64(DefaultOrderbookDepth)}, subs[1].Params)
}

func TestStaleSocketIsIgnored(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	old := d.last()

	st, err := c.SubscribeOrderbook(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(ctx))

	old.deliver(snapshot(clobA, 1))
	old.drop()
	assert.Equal(t, StateConnected, c.State())

	d.last().deliver(snapshot(clobA, 2))
	got, err := recvWithin(t, st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Timestamp)
}
