package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

// Connection errors.
var (
	// ErrClosed indicates use of a closed connection.
	ErrClosed = errors.New("connection closed")

	// ErrTimeout indicates a Receive deadline expired.
	ErrTimeout = errors.New("receive timeout")
)

// Transport is the synchronous byte transport messages travel over.
type Transport interface {
	// Send writes one encoded message.
	Send(data []byte) error

	// Receive blocks for the next encoded message. A timeout of zero waits
	// indefinitely.
	Receive(timeout time.Duration) ([]byte, error)
}

// Conn is a framed HWCP connection. Send may be called concurrently; Receive
// must be called from one goroutine at a time.
type Conn struct {
	id     string
	conn   net.Conn
	framer *Framer

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ Transport = (*Conn)(nil)

// ConnOption configures a Conn.
type ConnOption func(*connOptions)

type connOptions struct {
	maxSize uint32
	logger  log.Logger
	id      string
}

// WithMaxMessageSize limits frame payloads in both directions.
func WithMaxMessageSize(n uint32) ConnOption {
	return func(o *connOptions) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithFrameLogger records every frame to logger.
func WithFrameLogger(logger log.Logger) ConnOption {
	return func(o *connOptions) { o.logger = logger }
}

// WithConnID overrides the generated connection id.
func WithConnID(id string) ConnOption {
	return func(o *connOptions) { o.id = id }
}

// NewConn wraps an established stream. The connection gets a fresh UUID
// unless WithConnID is given.
func NewConn(c net.Conn, opts ...ConnOption) *Conn {
	o := connOptions{maxSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.New().String()
	}

	framer := NewFramerWithMaxSize(c, o.maxSize)
	if o.logger != nil {
		framer.SetLogger(o.logger, o.id)
	}
	return &Conn{
		id:     o.id,
		conn:   c,
		framer: framer,
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes data as one frame.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads the next frame. A timeout of zero waits indefinitely; an
// expired deadline returns an error wrapping ErrTimeout.
func (c *Conn) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		select {
		case <-c.done:
			return nil, ErrClosed
		default:
		}
		return nil, err
	}
	return data, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
