package ws

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"

	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// Connection owns the single socket to the node and multiplexes every
// subscription over it. It reconnects on unexpected drops according to its
// ReconnectPolicy and replays all registered subscriptions afterwards.
type Connection struct {
	url     string
	dialer  Dialer
	maxSubs int
	policy  ReconnectPolicy
	jitter  JitterSource

	mu            sync.Mutex
	state         ConnectionState
	sock          Socket
	gen           uint64
	subs          map[string]*subscription
	nextSeq       uint64
	attempt       int
	stopReconnect context.CancelFunc

	listenersMu sync.Mutex
	listeners   []*Listener
}

// Listener is the handle returned by AddEventListener.
type Listener struct {
	fn      EventListener
	removed atomic.Bool
}

// subscription is one registry entry.
type subscription struct {
	id      string
	seq     uint64
	channel Channel
	params  any
	filter  map[string]struct{}
	policy  *ReconnectPolicy
	sink    sink
}

// sink is the typed half of a subscription, see Subscribe.
type sink interface {
	named(id string)
	deliver(raw []byte) error
	fail(err error)
	complete()
	dropped() uint64
}

func (s *subscription) matches(keys []string) bool {
	if len(s.filter) == 0 {
		return true
	}
	for _, k := range keys {
		if _, ok := s.filter[k]; ok {
			return true
		}
	}
	return false
}

// NewConnection returns a disconnected connection to url. Without WithDialer
// it dials with a default GorillaDialer.
func NewConnection(url string, opts ...ConnectionOpt) *Connection {
	c := &Connection{
		url:     url,
		maxSubs: DefaultMaxSubscriptions,
		policy:  DefaultReconnectPolicy(),
		subs:    make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewGorillaDialer()
	}
	return c
}

// URL is the node endpoint.
func (c *Connection) URL() string { return c.url }

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateName is State as a string, for health reporting.
func (c *Connection) StateName() string {
	return c.State().String()
}

// IsConnected reports whether the socket is open and subscriptions are live.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// MaxSubscriptions is the registry capacity.
func (c *Connection) MaxSubscriptions() int {
	return c.maxSubs
}

// SubscriptionCount returns the number of registered subscriptions.
func (c *Connection) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// CanSubscribe reports whether another subscription would be admitted.
func (c *Connection) CanSubscribe() bool {
	return c.SubscriptionCount() < c.maxSubs
}

// Connect opens the socket and replays every registered subscription. It is
// a no-op while connected or connecting. A failed dial leaves the connection
// disconnected and is not retried.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	case StateReconnecting:
		c.cancelReconnectLocked()
	}
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	sock, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()

		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		logger.Error().Err(err).Str("url", c.url).Msg("ws connect failed")
		c.emit(Event{Type: EventError, Err: err})
		return err
	}

	if !c.adopt(gen, sock) {
		_ = sock.Close()
		return ErrConnectAborted
	}
	return nil
}

// adopt installs sock as the live socket if gen is still current, starts
// reading and replays subscribe messages in registration order.
func (c *Connection) adopt(gen uint64, sock Socket) bool {
	c.mu.Lock()
	if c.gen != gen || (c.state != StateConnecting && c.state != StateReconnecting) {
		c.mu.Unlock()
		return false
	}
	c.sock = sock
	c.attempt = 0
	c.stopReconnect = nil
	c.setStateLocked(StateConnected)
	sock.Listen(c.handlerFor(gen))

	replayed := 0
	for _, s := range c.orderedLocked() {
		if c.sendLocked(subscribeMessage(s)) == nil {
			replayed++
		}
	}
	c.mu.Unlock()

	logger.Info().Str("url", c.url).Int("subscriptions", replayed).Msg("ws connected")
	c.emit(Event{Type: EventConnected})
	return true
}

// Disconnect closes the socket and stops any reconnect in progress. The
// registry is kept, so a later Connect resubscribes everything.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.cancelReconnectLocked()
	c.gen++
	sock := c.sock
	c.sock = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if sock != nil {
		if err := sock.Close(); err != nil {
			logger.Warn().Err(err).Msg("ws close error")
		}
	}
	c.emit(Event{Type: EventDisconnected, Reason: "client disconnect"})
	return nil
}

// Close disconnects and ends every stream silently.
func (c *Connection) Close() error {
	err := c.Disconnect()

	c.mu.Lock()
	subs := c.drainLocked()
	c.mu.Unlock()

	for _, s := range subs {
		s.sink.complete()
	}
	return err
}

func (c *Connection) handlerFor(gen uint64) SocketHandler {
	return SocketHandler{
		OnMessage: func(data []byte) {
			c.dispatch(gen, data)
		},
		OnError: func(err error) {
			if c.current(gen) {
				c.emit(Event{Type: EventError, Err: err})
			}
		},
		OnClose: func(code int, reason string) {
			c.handleClose(gen, code, reason)
		},
	}
}

func (c *Connection) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Connection) handleClose(gen uint64, code int, reason string) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.setStateLocked(StateReconnecting)
	ctx, cancel := context.WithCancel(context.Background())
	c.stopReconnect = cancel
	c.mu.Unlock()

	logger.Warn().Int("code", code).Str("reason", reason).Msg("ws connection lost")
	c.emit(Event{Type: EventDisconnected, Reason: fmt.Sprintf("closed %d: %s", code, reason)})

	goplus.Go(func() { c.reconnectLoop(ctx) })
}

// reconnectLoop retries the dial with the connection policy until it
// succeeds, the policy gives up, or ctx is cancelled by Connect/Disconnect.
func (c *Connection) reconnectLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		if ctx.Err() != nil || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		attempt := c.attempt
		decision := Resolve(c.policy, attempt, c.jitter)
		if !decision.ShouldRetry {
			c.exhaustLocked(attempt)
			return
		}
		expired := c.expireLocked(attempt)
		c.mu.Unlock()

		for _, s := range expired {
			logger.Warn().Str("id", s.id).Str("channel", string(s.channel)).Int("attempt", attempt).Msg("subscription reconnect policy exhausted")
			s.sink.fail(fmt.Errorf("%w: subscription %s gave up after %d attempts", ErrReconnectExhausted, s.id, attempt))
		}

		logger.Info().Int("attempt", attempt+1).Dur("delay", decision.Delay).Msg("ws reconnecting")
		c.emit(Event{Type: EventReconnecting, Attempt: attempt + 1, Delay: decision.Delay})

		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		c.gen++
		gen := c.gen
		c.mu.Unlock()

		monitor.IncReconnectAttempts()
		sock, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.mu.Lock()
			if c.gen == gen && c.state == StateReconnecting {
				c.attempt++
			}
			c.mu.Unlock()
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("ws reconnect failed")
			continue
		}

		if !c.adopt(gen, sock) {
			_ = sock.Close()
			return
		}
		logger.Info().Msg("ws reconnected, backoff reset")
		return
	}
}

// exhaustLocked gives up: every registered subscription ends with
// ErrReconnectExhausted. It releases c.mu.
func (c *Connection) exhaustLocked(attempts int) {
	subs := c.drainLocked()
	c.stopReconnect = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts)
	logger.Error().Err(err).Int("subscriptions", len(subs)).Msg("ws giving up")
	monitor.IncReconnectExhausted()

	for _, s := range subs {
		s.sink.fail(err)
	}
	c.emit(Event{Type: EventDisconnected, Reason: err.Error()})
	c.emit(Event{Type: EventError, Err: err})
}

// expireLocked removes subscriptions whose own policy forbids this attempt.
func (c *Connection) expireLocked(attempt int) []*subscription {
	var out []*subscription
	for _, s := range c.orderedLocked() {
		if s.policy == nil {
			continue
		}
		if !Resolve(*s.policy, attempt, c.jitter).ShouldRetry {
			delete(c.subs, s.id)
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		monitor.SetSubscriptionsActive(len(c.subs))
	}
	return out
}

func (c *Connection) cancelReconnectLocked() {
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
}

func (c *Connection) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("ws state changed")
	c.state = s
	monitor.SetConnectionState(int(s), s == StateConnected)
}

// register admits s, assigns its id and sends the subscribe message when
// connected. It fails before sending anything when the registry is full.
func (c *Connection) register(s *subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) >= c.maxSubs {
		return fmt.Errorf("%w: %d of %d in use", ErrSubscriptionLimit, len(c.subs), c.maxSubs)
	}
	c.nextSeq++
	s.seq = c.nextSeq
	s.id = "sub-" + cast.ToString(s.seq)
	s.sink.named(s.id)
	c.subs[s.id] = s
	monitor.SetSubscriptionsActive(len(c.subs))

	if c.state == StateConnected {
		_ = c.sendLocked(subscribeMessage(s))
	}
	logger.Debug().Str("id", s.id).Str("channel", string(s.channel)).Msg("subscription registered")
	return nil
}

// Unregister removes the subscription and, when connected, tells the node.
// Unknown ids are ignored.
func (c *Connection) Unregister(id string) {
	c.remove(id, true)
}

func (c *Connection) remove(id string, notify bool) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.subs[id]
	if !ok {
		return nil
	}
	delete(c.subs, id)
	monitor.SetSubscriptionsActive(len(c.subs))

	if notify && c.state == StateConnected {
		_ = c.sendLocked(controlMessage{Type: msgUnsubscribe, ID: s.id, Channel: s.channel})
	}
	logger.Debug().Str("id", id).Str("channel", string(s.channel)).Msg("subscription removed")
	return s
}

func (c *Connection) drainLocked() []*subscription {
	subs := c.orderedLocked()
	clear(c.subs)
	monitor.SetSubscriptionsActive(0)
	return subs
}

// orderedLocked returns the registry in registration order.
func (c *Connection) orderedLocked() []*subscription {
	out := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *subscription) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

func (c *Connection) sendLocked(msg controlMessage) error {
	if c.sock == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err = c.sock.Send(data); err != nil {
		logger.Warn().Err(err).Str("type", msg.Type).Str("id", msg.ID).Msg("ws send failed")
		return err
	}
	return nil
}

func subscribeMessage(s *subscription) controlMessage {
	return controlMessage{Type: msgSubscribe, ID: s.id, Channel: s.channel, Params: s.params}
}

// AddEventListener registers fn for lifecycle events. Keep the returned
// handle to remove it.
func (c *Connection) AddEventListener(fn EventListener) *Listener {
	l := &Listener{fn: fn}
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
	return l
}

// RemoveEventListener unregisters l. It takes effect immediately, including
// for an emission already in progress.
func (c *Connection) RemoveEventListener(l *Listener) {
	if l == nil {
		return
	}
	l.removed.Store(true)
	c.listenersMu.Lock()
	c.listeners = slices.DeleteFunc(c.listeners, func(x *Listener) bool { return x == l })
	c.listenersMu.Unlock()
}

func (c *Connection) emit(ev Event) {
	c.listenersMu.Lock()
	snapshot := slices.Clone(c.listeners)
	c.listenersMu.Unlock()

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}
		goplus.Safe(func() { l.fn(ev) })
	}
}

// GetStats reports connection state and per-subscription drop counts.
func (c *Connection) GetStats() map[string]any {
	c.mu.Lock()
	subs := c.orderedLocked()
	state := c.state
	attempt := c.attempt
	c.mu.Unlock()

	list := make([]map[string]any, 0, len(subs))
	for _, s := range subs {
		list = append(list, map[string]any{
			"id":      s.id,
			"channel": s.channel,
			"dropped": s.sink.dropped(),
		})
	}
	return map[string]any{
		"state":             state.String(),
		"reconnect_attempt": attempt,
		"max_subscriptions": c.maxSubs,
		"subscriptions":     list,
	}
}
