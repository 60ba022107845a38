package ws

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// Stream is the pull side of one subscription. Events are buffered up to a
// fixed size; when the buffer is full new events are dropped and counted.
//
// Cancelling the context passed to Subscribe, or calling Close, ends the
// stream silently with io.EOF and discards anything still buffered. Decode
// failures and exhausted reconnects end it with an error once the buffered
// events have been read.
type Stream[T any] struct {
	id      string
	channel Channel
	ctx     context.Context

	events chan T

	cancelled  chan struct{}
	cancelOnce sync.Once
	stopWatch  func() bool

	finished   chan struct{}
	finishOnce sync.Once
	err        error

	release     func()
	releaseOnce sync.Once

	dropped atomic.Uint64
}

func newStream[T any](ctx context.Context, channel Channel, size int) *Stream[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Stream[T]{
		channel:   channel,
		ctx:       ctx,
		events:    make(chan T, size),
		cancelled: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// bind attaches the unregister hook, then starts watching the context.
func (s *Stream[T]) bind(release func()) {
	s.release = release
	s.stopWatch = context.AfterFunc(s.ctx, s.cancel)
}

// ID is the subscription id sent to the node.
func (s *Stream[T]) ID() string { return s.id }

func (s *Stream[T]) Channel() Channel { return s.channel }

// Dropped reports how many events were discarded because the buffer was full.
func (s *Stream[T]) Dropped() uint64 { return s.dropped.Load() }

// Err returns the terminal error, or nil while the stream is live or when it
// ended silently.
func (s *Stream[T]) Err() error {
	select {
	case <-s.finished:
		return s.err
	default:
		return nil
	}
}

// Close cancels the stream. It is equivalent to cancelling its context.
func (s *Stream[T]) Close() {
	s.cancel()
}

func (s *Stream[T]) isCancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return s.ctx.Err() != nil
	}
}

func (s *Stream[T]) isFinished() bool {
	select {
	case <-s.finished:
		return true
	default:
		return false
	}
}

func (s *Stream[T]) push(v T) {
	if s.isCancelled() || s.isFinished() {
		return
	}
	select {
	case s.events <- v:
		monitor.IncEventsBuffered(string(s.channel))
	default:
		n := s.dropped.Add(1)
		monitor.IncEventsDropped(string(s.channel))
		logger.Debug().Str("id", s.id).Str("channel", string(s.channel)).Uint64("dropped", n).Msg("stream buffer full, event dropped")
	}
}

// fail ends the stream with err after buffered events are consumed.
func (s *Stream[T]) fail(err error) {
	s.finishOnce.Do(func() {
		s.err = err
		close(s.finished)
	})
}

func (s *Stream[T]) complete() {
	s.fail(nil)
}

func (s *Stream[T]) cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
		if s.stopWatch != nil {
			s.stopWatch()
		}
	})
	s.drain()
	s.doRelease()
}

func (s *Stream[T]) drain() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}

func (s *Stream[T]) doRelease() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Recv blocks for the next event. It returns io.EOF when the stream was
// cancelled, closed or completed, and the terminal error when it failed.
func (s *Stream[T]) Recv() (T, error) {
	var zero T
	for {
		if s.isCancelled() {
			s.cancel()
			return zero, io.EOF
		}

		select {
		case v := <-s.events:
			return s.deliver(v)
		default:
		}

		select {
		case <-s.finished:
			select {
			case v := <-s.events:
				return s.deliver(v)
			default:
			}
			s.doRelease()
			if s.err != nil {
				return zero, s.err
			}
			return zero, io.EOF
		default:
		}

		select {
		case <-s.cancelled:
		case <-s.ctx.Done():
		case <-s.finished:
		case v := <-s.events:
			return s.deliver(v)
		}
	}
}

// deliver re-checks cancellation after an event was taken off the buffer, so
// a cancel that raced the receive still wins.
func (s *Stream[T]) deliver(v T) (T, error) {
	if s.isCancelled() {
		s.cancel()
		var zero T
		return zero, io.EOF
	}
	return v, nil
}

// All ranges over the stream. The final pair carries the terminal error, if
// any. Breaking out of the loop closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for {
			v, err := s.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
