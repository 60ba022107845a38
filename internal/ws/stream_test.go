package ws

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundStream(ctx context.Context, size int) (*Stream[int], *atomic.Int32) {
	var released atomic.Int32
	st := newStream[int](ctx, ChannelOrderbook, size)
	st.id = "sub-test"
	st.bind(func() { released.Add(1) })
	return st, &released
}

func TestStreamDropsNewestWhenFull(t *testing.T) {
	c, d := newTestConnection(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	st, err := c.SubscribeOrderbook(ctx, nil, WithBufferSize(1))
	require.NoError(t, err)

	d.last().deliver(snapshot(clobA, 1))
	d.last().deliver(snapshot(clobA, 2))

	got, err := recvWithin(t, st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Timestamp)
	assert.Equal(t, uint64(1), st.Dropped())
	assert.NoError(t, st.Err())

	st.Close()
	_, err = recvWithin(t, st, time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamCancelDiscardsBuffered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st, released := newBoundStream(ctx, 4)

	st.push(1)
	cancel()
	st.push(2)

	_, err := recvWithin(t, st, time.Second)
	assert.ErrorIs(t, err, io.EOF)
	_, err = recvWithin(t, st, time.Second)
	assert.ErrorIs(t, err, io.EOF)

	assert.Eventually(t, func() bool { return released.Load() == 1 }, time.Second, time.Millisecond)
	st.Close()
	assert.Equal(t, int32(1), released.Load())
}

func TestStreamCancelWakesBlockedRecv(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st, released := newBoundStream(ctx, 4)

	done := make(chan error, 1)
	go func() {
		_, err := st.Recv()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Recv still blocked after cancel")
	}
	assert.Eventually(t, func() bool { return released.Load() == 1 }, time.Second, time.Millisecond)
}

func TestStreamCancelRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		st, _ := newBoundStream(ctx, 4)
		st.push(1)

		go st.push(2)
		cancel()

		var got []int
		for {
			v, err := st.Recv()
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
				break
			}
			got = append(got, v)
		}
		assert.NotContains(t, got, 2)
		assert.LessOrEqual(t, len(got), 1)
	}
}

func TestStreamFailAfterBuffered(t *testing.T) {
	st, released := newBoundStream(context.Background(), 4)
	boom := errors.New("boom")

	st.push(1)
	st.push(2)
	st.fail(boom)
	st.push(3)

	v, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = st.Recv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = st.Recv()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, st.Err(), boom)
	assert.Equal(t, int32(1), released.Load())
}

func TestStreamAll(t *testing.T) {
	st, released := newBoundStream(context.Background(), 4)
	st.push(1)
	st.push(2)
	st.push(3)
	st.complete()

	var got []int
	for v, err := range st.All() {
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, int32(1), released.Load())
}

func TestStreamAllBreakCloses(t *testing.T) {
	st, released := newBoundStream(context.Background(), 4)
	st.push(1)
	st.push(2)

	for range st.All() {
		break
	}
	assert.Equal(t, int32(1), released.Load())

	_, err := st.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamAllYieldsTerminalError(t *testing.T) {
	st, _ := newBoundStream(context.Background(), 4)
	st.fail(ErrReconnectExhausted)

	var errs []error
	for _, err := range st.All() {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrReconnectExhausted)
}

func TestStreamIDSetBeforeFramesArrive(t *testing.T) {
	c, d := newTestConnection(t, WithMaxSubscriptions(64))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	sock := d.last()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ts := 1; ; ts++ {
			select {
			case <-stop:
				return
			default:
				sock.deliver(snapshot(clobA, ts))
			}
		}
	}()

	for i := 1; i <= 50; i++ {
		st, err := c.SubscribeOrderbook(ctx, nil, WithBufferSize(1))
		require.NoError(t, err)
		assert.Equal(t, "sub-"+strconv.Itoa(i), st.ID())
		st.Close()
	}
	close(stop)
	<-done

	subs := sock.ofType(msgSubscribe)
	require.Len(t, subs, 50)
	assert.Equal(t, "sub-50", subs[49].ID)
}
