package ws

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// SubscribeAuctionBids streams auction bids. With WithAuctionIDs the node
// still sends every bid; frames without a matching bid are skipped and
// delivered events keep only the matching bids.
func (c *Connection) SubscribeAuctionBids(ctx context.Context, opts ...SubscribeOpt) (*Stream[schema.AuctionBidEvent], error) {
	o := newSubscribeOptions(opts)

	var (
		filter []string
		wanted []uint256.Int
	)
	for _, raw := range o.auctionIDs {
		v, err := schema.ParseUint256(raw)
		if err != nil {
			return nil, &ParamError{Param: "auction_id", Value: raw}
		}
		wanted = append(wanted, v)
		filter = append(filter, v.Dec())
	}

	decode := schema.DecodeAuctionBids
	if len(wanted) > 0 {
		decode = func(raw []byte) (schema.AuctionBidEvent, error) {
			ev, err := schema.DecodeAuctionBids(raw)
			if err != nil {
				return ev, err
			}
			return ev.OnlyAuctions(wanted...), nil
		}
	}

	return subscribe[schema.AuctionBidEvent](ctx, c, Request{Channel: ChannelAuctionBids, Filter: filter}, decode, o)
}
