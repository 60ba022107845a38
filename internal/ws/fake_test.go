package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	clobA  = "0x" + strings.Repeat("aa", 32)
	clobB  = "0x" + strings.Repeat("bb", 32)
	txHash = "0x" + strings.Repeat("01", 32)
	bidder = "0x" + strings.Repeat("9f", 20)

	errDialRefused = errors.New("dial refused")
)

func snapshot(clob string, ts int) string {
	return `{"type":"orderbook_snapshot","clob_id":"` + clob + `",` +
		`"buys":{"100":{"volume":"5","minimum_expiry":1}},` +
		`"sells":{"110":{"volume":"2","minimum_expiry":1}},` +
		`"grouping_precision":"1","timestamp":` + strconv.Itoa(ts) + `,"new_bids_count":0}`
}

func auctionFrame(ids ...string) string {
	bids := make([]string, 0, len(ids))
	for _, id := range ids {
		bids = append(bids, `{"tx_hash":"`+txHash+`","bidder":"`+bidder+`","auction_id":"`+id+`","value":"1","data":"0x","deadline":1}`)
	}
	return `{"type":"auction_bids_added","timestamp":1,"bids":[` + strings.Join(bids, ",") + `]}`
}

// fakeSocket records outbound frames; tests drive inbound traffic by hand.
type fakeSocket struct {
	mu      sync.Mutex
	sent    []controlMessage
	handler SocketHandler
	closed  bool
}

func (s *fakeSocket) Listen(h SocketHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	var m controlMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handler
	s.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose(1000, "client disconnect")
	}
	return nil
}

func (s *fakeSocket) deliver(frame string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h.OnMessage([]byte(frame))
}

// drop simulates the node going away.
func (s *fakeSocket) drop() {
	s.mu.Lock()
	s.closed = true
	h := s.handler
	s.mu.Unlock()
	h.OnClose(1006, "abnormal closure")
}

func (s *fakeSocket) messages() []controlMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]controlMessage(nil), s.sent...)
}

func (s *fakeSocket) ofType(typ string) []controlMessage {
	var out []controlMessage
	for _, m := range s.messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// fakeDialer hands out fakeSockets. Queued errors are returned first, one
// per dial.
type fakeDialer struct {
	mu      sync.Mutex
	errs    []error
	sockets []*fakeSocket
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	s := &fakeSocket{}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) failNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.errs = append(d.errs, errDialRefused)
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func fastPolicy(maxAttempts int) ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  maxAttempts,
	}
}

func newTestConnection(t *testing.T, opts ...ConnectionOpt) (*Connection, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	opts = append([]ConnectionOpt{WithDialer(d), WithJitterSource(func() float64 { return 0.5 })}, opts...)
	c := NewConnection("ws://node.test/ws", opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, d
}

// recorder collects lifecycle events.
type recorder struct {
	ch chan Event
}

func record(c *Connection) (*recorder, *Listener) {
	r := &recorder{ch: make(chan Event, 64)}
	return r, c.AddEventListener(func(ev Event) { r.ch <- ev })
}

func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func recvWithin[T any](t *testing.T, st *Stream[T], d time.Duration) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := st.Recv()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(d):
		require.FailNow(t, "Recv did not return", "waited %s", d)
	}
	var zero T
	return zero, nil
}
