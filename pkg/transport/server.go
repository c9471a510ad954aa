package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

// Handler serves one connection. The connection is closed when it returns.
// ctx is cancelled when the server stops.
type Handler func(ctx context.Context, conn *Conn)

// ServerConfig configures an HWCP server.
type ServerConfig struct {
	// Address to listen on (e.g. ":9750" or "127.0.0.1:0").
	Address string

	// TLS enables TLS when non-nil. Build it with ServerTLSConfig.
	TLS *tls.Config

	// MaxMessageSize limits frame payloads (0 = DefaultMaxMessageSize).
	MaxMessageSize uint32

	// MaxConnections caps concurrent connections (0 = unlimited).
	// Extra connections are closed right after accept.
	MaxConnections int

	// Handler serves each accepted connection. Required.
	Handler Handler

	// Logger receives frame and state events. Optional.
	Logger log.Logger

	// Log receives operational messages (nil = slog.Default()).
	Log *slog.Logger
}

// Server accepts HWCP connections and runs the handler for each one.
type Server struct {
	config   ServerConfig
	slog     *slog.Logger
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.Mutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Call Start to begin accepting.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("server handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	l := config.Log
	if l == nil {
		l = slog.Default()
	}
	return &Server{
		config: config,
		slog:   l.With("component", "transport"),
		conns:  make(map[*Conn]struct{}),
	}, nil
}

// Start listens on the configured address and accepts in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.config.TLS != nil {
		ln = tls.NewListener(ln, s.config.TLS)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.slog.Info("listening", "addr", ln.Addr().String(), "tls", s.config.TLS != nil)
	s.logServerState("", "RUNNING")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Stop closes the listener and all connections and waits for handlers to
// return.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.logServerState("RUNNING", "STOPPED")
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.slog.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	if tc, ok := nc.(*tls.Conn); ok {
		if err := tc.HandshakeContext(s.ctx); err != nil {
			nc.Close()
			s.slog.Warn("TLS handshake failed", "remote", nc.RemoteAddr().String(), "error", err)
			return
		}
		if err := VerifyConnection(tc.ConnectionState()); err != nil {
			nc.Close()
			s.slog.Warn("TLS verification failed", "remote", nc.RemoteAddr().String(), "error", err)
			return
		}
	}

	conn := NewConn(nc, WithMaxMessageSize(s.config.MaxMessageSize), WithFrameLogger(s.config.Logger))

	if reason := s.register(conn); reason != "" {
		logState(s.config.Logger, conn, log.RoleServer, "", "REJECTED", reason)
		s.slog.Warn("connection rejected", "remote", nc.RemoteAddr().String(), "reason", reason)
		conn.Close()
		return
	}
	logState(s.config.Logger, conn, log.RoleServer, "", "CONNECTED", "")
	s.slog.Debug("connection opened", "conn", conn.ID(), "remote", nc.RemoteAddr().String())

	defer func() {
		conn.Close()
		s.unregister(conn)
		logState(s.config.Logger, conn, log.RoleServer, "CONNECTED", "DISCONNECTED", "")
		s.slog.Debug("connection closed", "conn", conn.ID())
	}()

	s.config.Handler(s.ctx, conn)
}

// register tracks c and returns an empty reason, or why c was refused.
func (s *Server) register(c *Conn) string {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if !s.running.Load() {
		return "server stopping"
	}
	if s.config.MaxConnections > 0 && len(s.conns) >= s.config.MaxConnections {
		return "connection limit"
	}
	s.conns[c] = struct{}{}
	return ""
}

func (s *Server) unregister(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) logServerState(from, to string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityServer,
			OldState: from,
			NewState: to,
		},
	})
}
