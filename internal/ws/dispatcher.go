package ws

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/internal/schema"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// route maps an inbound message tag to its channel and the ids a
// subscription filter is matched against.
type route struct {
	channel Channel
	keys    func(data []byte) []string
}

var routes = map[string]route{
	msgOrderbook:        {channel: ChannelOrderbook, keys: clobKey},
	msgClobBidsAdded:    {channel: ChannelBids, keys: clobKey},
	msgAuctionBidsAdded: {channel: ChannelAuctionBids, keys: auctionKeys},
}

func clobKey(data []byte) []string {
	if id, ok := schema.NormalizeHash(gjson.GetBytes(data, "clob_id").String()); ok {
		return []string{id}
	}
	return nil
}

func auctionKeys(data []byte) []string {
	var keys []string
	gjson.GetBytes(data, "bids.#.auction_id").ForEach(func(_, v gjson.Result) bool {
		if id, ok := schema.NormalizeAuctionID(v.String()); ok {
			keys = append(keys, id)
		}
		return true
	})
	return keys
}

// dispatch fans one inbound frame out to every matching subscription, in
// registration order, on the reading goroutine.
func (c *Connection) dispatch(gen uint64, data []byte) {
	tag := gjson.GetBytes(data, "type").String()
	monitor.IncMessagesReceived(tag)

	switch tag {
	case msgSubscribed, msgUnsubscribed:
		logger.Debug().Str("type", tag).
			Str("channel", gjson.GetBytes(data, "channel").String()).
			Str("id", gjson.GetBytes(data, "id").String()).
			Msg("ws ack")
		return
	case msgError:
		c.handleServerError(gen, data)
		return
	}

	r, ok := routes[tag]
	if !ok {
		logger.Debug().Str("type", tag).Msg("ws message ignored")
		return
	}

	for _, s := range c.matching(gen, r.channel, r.keys(data)) {
		if err := s.sink.deliver(data); err != nil {
			monitor.IncDecodeErrors(string(r.channel))
			logger.Warn().Err(err).Str("id", s.id).Str("channel", string(r.channel)).Msg("decode failed, closing subscription")
			c.Unregister(s.id)
			s.sink.fail(fmt.Errorf("%w: %s: %w", ErrDecode, tag, err))
		}
	}
}

func (c *Connection) matching(gen uint64, ch Channel, keys []string) []*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return nil
	}
	var out []*subscription
	for _, s := range c.orderedLocked() {
		if s.channel == ch && s.matches(keys) {
			out = append(out, s)
		}
	}
	return out
}

// handleServerError ends the addressed subscription with ErrServer. Frames
// without a known id surface as connection error events.
func (c *Connection) handleServerError(gen uint64, data []byte) {
	monitor.IncServerErrors()
	msg := gjson.GetBytes(data, "message").String()
	id := gjson.GetBytes(data, "id").String()

	if id != "" && c.current(gen) {
		if s := c.remove(id, false); s != nil {
			logger.Warn().Str("id", id).Str("channel", string(s.channel)).Str("message", msg).Msg("server rejected subscription")
			s.sink.fail(fmt.Errorf("%w: %s", ErrServer, msg))
			return
		}
	}

	logger.Warn().Str("id", id).Str("message", msg).Msg("ws server error")
	c.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %s", ErrServer, msg)})
}
