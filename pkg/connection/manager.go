package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
)

// Connection errors.
var (
	ErrClosed       = errors.New("connection manager closed")
	ErrNotConnected = errors.New("not connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a dial is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a transport connection the manager can close.
type Conn interface {
	transport.Transport
	Close() error
}

// DialFunc opens a new connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Default manager settings.
const (
	DefaultDialAttempts = 3
	DefaultDialTimeout  = 10 * time.Second
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// DialAttempts bounds the dials per connect (0 = DefaultDialAttempts).
	DialAttempts int

	// DialTimeout bounds each dial (0 = DefaultDialTimeout).
	DialTimeout time.Duration

	// Backoff paces dial attempts (nil = NewBackoff()).
	Backoff *Backoff

	// OnStateChange is called after every state transition, with the
	// manager locked. It must not call back into the Manager.
	OnStateChange func(from, to State)
}

// Manager keeps one transport connection open, dialing on demand and
// dropping the connection when it fails. It implements transport.Transport,
// so a client can use it in place of a single connection and survive
// server restarts.
type Manager struct {
	mu    sync.Mutex
	cfg   ManagerConfig
	dial  DialFunc
	conn  Conn
	state State
}

var _ transport.Transport = (*Manager)(nil)

// NewManager creates a manager. No connection is made until Connect or the
// first Send.
func NewManager(dial DialFunc, cfg ManagerConfig) *Manager {
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = DefaultDialAttempts
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff()
	}
	return &Manager{cfg: cfg, dial: dial, state: StateDisconnected}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials unless already connected, retrying with backoff up to
// DialAttempts times.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.connectLocked(ctx)
	return err
}

func (m *Manager) connectLocked(ctx context.Context) (Conn, error) {
	switch m.state {
	case StateClosed:
		return nil, ErrClosed
	case StateConnected:
		return m.conn, nil
	}
	m.setState(StateConnecting)

	var lastErr error
	for attempt := range m.cfg.DialAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				m.setState(StateDisconnected)
				return nil, ctx.Err()
			case <-time.After(m.cfg.Backoff.Next()):
			}
		}

		dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		conn, err := m.dial(dctx)
		cancel()
		if err == nil {
			m.conn = conn
			m.cfg.Backoff.Reset()
			m.setState(StateConnected)
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	m.setState(StateDisconnected)
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", m.cfg.DialAttempts, lastErr)
}

// setState must be called with m.mu held.
func (m *Manager) setState(s State) {
	old := m.state
	m.state = s
	if old != s && m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(old, s)
	}
}

// Send writes data on the current connection, connecting first if needed.
// A failed write drops the connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	conn, err := m.connectLocked(context.Background())
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := conn.Send(data); err != nil {
		m.drop(conn)
		return err
	}
	return nil
}

// Receive reads from the current connection. Errors other than a timeout
// drop the connection so the next Send reconnects.
func (m *Manager) Receive(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	switch {
	case state == StateClosed:
		return nil, ErrClosed
	case conn == nil:
		return nil, ErrNotConnected
	}

	data, err := conn.Receive(timeout)
	if err != nil && !errors.Is(err, transport.ErrTimeout) {
		m.drop(conn)
	}
	return data, err
}

// Drop closes the current connection. The next Send reconnects.
func (m *Manager) Drop() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		m.drop(conn)
	}
}

// drop closes conn if it is still the current connection.
func (m *Manager) drop(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return
	}
	m.conn = nil
	conn.Close()
	if m.state == StateConnected {
		m.setState(StateDisconnected)
	}
}

// Close closes the connection and stops further dials.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return nil
	}
	var err error
	if m.conn != nil {
		err = m.conn.Close()
		m.conn = nil
	}
	m.setState(StateClosed)
	return err
}
