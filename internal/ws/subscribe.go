package ws

import (
	"context"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// Decoder turns one raw inbound frame into a typed event.
type Decoder[T any] func(raw []byte) (T, error)

// Request describes what to subscribe to. Filter holds normalised ids; an
// empty filter matches every message of the channel.
type Request struct {
	Channel Channel
	Params  any
	Filter  []string
}

type streamSink[T any] struct {
	decode Decoder[T]
	stream *Stream[T]
}

func (s *streamSink[T]) deliver(raw []byte) error {
	v, err := s.decode(raw)
	if err != nil {
		return err
	}
	s.stream.push(v)
	return nil
}

// named runs under the connection lock, before the subscription is visible
// to the reader goroutine.
func (s *streamSink[T]) named(id string) { s.stream.id = id }
func (s *streamSink[T]) fail(err error)  { s.stream.fail(err) }
func (s *streamSink[T]) complete()       { s.stream.complete() }
func (s *streamSink[T]) dropped() uint64 { return s.stream.Dropped() }

// Subscribe registers req on c and returns its stream. ctx cancels the
// subscription; the stream then ends with io.EOF and the node is sent an
// unsubscribe. It fails with ErrSubscriptionLimit when c is full.
func Subscribe[T any](ctx context.Context, c *Connection, req Request, decode Decoder[T], opts ...SubscribeOpt) (*Stream[T], error) {
	o := newSubscribeOptions(opts)
	return subscribe(ctx, c, req, decode, o)
}

func subscribe[T any](ctx context.Context, c *Connection, req Request, decode Decoder[T], o subscribeOptions) (*Stream[T], error) {
	st := newStream[T](ctx, req.Channel, o.bufferSize)
	s := &subscription{
		channel: req.Channel,
		params:  req.Params,
		policy:  o.policy,
		sink:    &streamSink[T]{decode: decode, stream: st},
	}
	if len(req.Filter) > 0 {
		s.filter = make(map[string]struct{}, len(req.Filter))
		for _, k := range req.Filter {
			s.filter[k] = struct{}{}
		}
	}

	if err := c.register(s); err != nil {
		return nil, err
	}
	id := s.id
	st.bind(func() { c.Unregister(id) })
	return st, nil
}

// normalizeClobIDs validates ids and returns them in canonical form.
func normalizeClobIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, ok := schema.NormalizeHash(id)
		if !ok {
			return nil, &ParamError{Param: "clob_id", Value: id}
		}
		out = append(out, n)
	}
	return out, nil
}

// ParamError reports an invalid subscription parameter.
type ParamError struct {
	Param string
	Value string
}

func (e *ParamError) Error() string {
	return "ws: invalid " + e.Param + " " + e.Value
}

func (e *ParamError) Unwrap() error { return ErrInvalidParams }
