package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connPair(t *testing.T, opts ...ConnOption) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewConn(a, opts...), NewConn(b, opts...)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConnSendReceive(t *testing.T) {
	a, b := connPair(t)

	go func() {
		_ = a.Send([]byte("ping"))
	}()
	got, err := b.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)
}

func TestConnIDs(t *testing.T) {
	a, b := connPair(t)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	x, _ := net.Pipe()
	c := NewConn(x, WithConnID("fixed"))
	defer c.Close()
	assert.Equal(t, "fixed", c.ID())
}

func TestConnReceiveTimeout(t *testing.T) {
	_, b := connPair(t)

	start := time.Now()
	_, err := b.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnReceiveAfterTimeout(t *testing.T) {
	a, b := connPair(t)

	_, err := b.Receive(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	go func() { _ = a.Send([]byte{1, 2, 3}) }()
	got, err := b.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestConnMaxMessageSize(t *testing.T) {
	a, _ := connPair(t, WithMaxMessageSize(4))
	err := a.Send(make([]byte, 5))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestConnClose(t *testing.T) {
	a, b := connPair(t)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "second close")

	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed")
	}

	assert.ErrorIs(t, a.Send([]byte{1}), ErrClosed)
	_, err := a.Receive(0)
	assert.ErrorIs(t, err, ErrClosed)

	// The peer sees the stream end.
	_, err = b.Receive(time.Second)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestConnFrameLogging(t *testing.T) {
	logger := &capturingLogger{}
	a, b := connPair(t, WithFrameLogger(logger))

	go func() { _ = a.Send([]byte{9}) }()
	_, err := b.Receive(time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(logger.Events()) == 2 }, time.Second, 5*time.Millisecond)
	ids := map[string]bool{}
	for _, e := range logger.Events() {
		ids[e.ConnectionID] = true
	}
	assert.True(t, ids[a.ID()])
	assert.True(t, ids[b.ID()])
}
