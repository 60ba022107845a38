package ws

import (
	"context"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// SubscribeOrderbook streams orderbook snapshots for the given CLOBs, or for
// every CLOB when clobIDs is empty. Depth defaults to DefaultOrderbookDepth.
func (c *Connection) SubscribeOrderbook(ctx context.Context, clobIDs []string, opts ...SubscribeOpt) (*Stream[schema.OrderbookUpdate], error) {
	o := newSubscribeOptions(opts)
	ids, err := normalizeClobIDs(clobIDs)
	if err != nil {
		return nil, err
	}

	req := Request{
		Channel: ChannelOrderbook,
		Params:  subscriptionParams{Depth: o.depth, ClobIDs: ids},
		Filter:  ids,
	}
	return subscribe[schema.OrderbookUpdate](ctx, c, req, schema.DecodeOrderbook, o)
}
