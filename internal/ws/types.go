package ws

import (
	"fmt"
	"strconv"
	"time"
)

// Channel is a server-side stream name.
type Channel string

const (
	ChannelOrderbook   Channel = "orderbook"
	ChannelBids        Channel = "bids"
	ChannelAuctionBids Channel = "auction_bids"
)

// Inbound and outbound message tags.
const (
	msgSubscribe        = "subscribe"
	msgUnsubscribe      = "unsubscribe"
	msgSubscribed       = "subscribed"
	msgUnsubscribed     = "unsubscribed"
	msgError            = "error"
	msgOrderbook        = "orderbook_snapshot"
	msgClobBidsAdded    = "clob_bids_added"
	msgAuctionBidsAdded = "auction_bids_added"
)

// controlMessage is the subscribe/unsubscribe frame sent to the node.
type controlMessage struct {
	Type    string  `json:"type"`
	ID      string  `json:"id,omitempty"`
	Channel Channel `json:"channel"`
	Params  any     `json:"params,omitempty"`
}

type subscriptionParams struct {
	Depth   int      `json:"depth,omitempty"`
	ClobIDs []string `json:"clob_ids,omitempty"`
}

// ConnectionState of the shared socket.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// EventType of a connection lifecycle event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventReconnecting EventType = "reconnecting"
	EventError        EventType = "error"
)

// Event is delivered to listeners on lifecycle changes. Reason is set for
// disconnected, Attempt and Delay for reconnecting, Err for error.
type Event struct {
	Type    EventType
	Reason  string
	Attempt int
	Delay   time.Duration
	Err     error
}

func (e Event) String() string {
	switch e.Type {
	case EventDisconnected:
		return fmt.Sprintf("disconnected: %s", e.Reason)
	case EventReconnecting:
		return fmt.Sprintf("reconnecting: attempt %d in %s", e.Attempt, e.Delay)
	case EventError:
		return fmt.Sprintf("error: %v", e.Err)
	default:
		return string(e.Type)
	}
}

// EventListener receives lifecycle events synchronously. Panics are recovered.
type EventListener func(Event)
