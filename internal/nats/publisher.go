package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// Subject suffixes under the configured prefix.
const (
	SubjectOrderbook   = "orderbook"
	SubjectBids        = "bids"
	SubjectAuctionBids = "auction_bids"
)

// Publisher relays decoded node events to NATS.
type Publisher struct {
	*nats.Conn
	prefix string
	mu     sync.RWMutex
	closed bool
}

func NewPublisher(url, prefix string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("pod_stream"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.GetMetrics().SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.GetMetrics().SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	monitor.GetMetrics().SetNATSConnected(true)
	return &Publisher{Conn: conn, prefix: prefix}, nil
}

// Subject builds "<prefix>.<kind>[.<key>]".
func (p *Publisher) Subject(kind, key string) string {
	s := kind
	if p.prefix != "" {
		s = p.prefix + "." + kind
	}
	if key != "" {
		s += "." + key
	}
	return s
}

func (p *Publisher) PublishOrderbook(msg OrderbookMessage) error {
	return p.publishJSON(SubjectOrderbook, p.Subject(SubjectOrderbook, msg.ClobID), msg)
}

func (p *Publisher) PublishBids(msg BidsMessage) error {
	return p.publishJSON(SubjectBids, p.Subject(SubjectBids, msg.ClobID), msg)
}

func (p *Publisher) PublishAuctionBids(msg AuctionBidsMessage) error {
	return p.publishJSON(SubjectAuctionBids, p.Subject(SubjectAuctionBids, ""), msg)
}

func (p *Publisher) publishJSON(kind, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		monitor.IncPublishErrors(kind)
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err = p.Publish(subject, data); err != nil {
		monitor.IncPublishErrors(kind)
		logger.Error().Err(err).Str("subject", subject).Msg("nats publish failed")
		return err
	}
	monitor.IncEventsPublished(kind)
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && p.Conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	monitor.GetMetrics().SetNATSConnected(false)

	if p.Conn != nil {
		if err := p.Conn.Drain(); err != nil {
			p.Conn.Close()
			return err
		}
	}
	return nil
}
