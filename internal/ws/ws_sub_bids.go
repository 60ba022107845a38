package ws

import (
	"context"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// SubscribeBids streams the bids added to the given CLOBs.
func (c *Connection) SubscribeBids(ctx context.Context, clobIDs []string, opts ...SubscribeOpt) (*Stream[schema.BidEvent], error) {
	o := newSubscribeOptions(opts)
	ids, err := normalizeClobIDs(clobIDs)
	if err != nil {
		return nil, err
	}

	req := Request{
		Channel: ChannelBids,
		Params:  subscriptionParams{ClobIDs: ids},
		Filter:  ids,
	}
	return subscribe[schema.BidEvent](ctx, c, req, schema.DecodeBids, o)
}
