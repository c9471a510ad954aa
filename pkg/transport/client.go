package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

// DefaultConnectTimeout bounds connection setup when DialConfig leaves it unset.
const DefaultConnectTimeout = 10 * time.Second

// DialConfig configures an outgoing connection.
type DialConfig struct {
	// TLS enables TLS when non-nil.
	TLS *tls.Config

	// ConnectTimeout bounds TCP connect plus TLS handshake.
	ConnectTimeout time.Duration

	// MaxMessageSize limits frame payloads (0 = DefaultMaxMessageSize).
	MaxMessageSize uint32

	// ConnID tags frame and state events (empty = fresh UUID per dial).
	ConnID string

	// Logger receives frame and state events. Optional.
	Logger log.Logger
}

// Dial connects to an HWCP server.
func Dial(ctx context.Context, address string, cfg DialConfig) (*Conn, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		nc  net.Conn
		err error
	)
	if cfg.TLS != nil {
		d := &tls.Dialer{Config: cfg.TLS}
		nc, err = d.DialContext(ctx, "tcp", address)
	} else {
		var d net.Dialer
		nc, err = d.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tc, ok := nc.(*tls.Conn); ok {
		if err := VerifyConnection(tc.ConnectionState()); err != nil {
			nc.Close()
			return nil, err
		}
	}

	conn := NewConn(nc, WithMaxMessageSize(cfg.MaxMessageSize), WithFrameLogger(cfg.Logger), WithConnID(cfg.ConnID))
	logState(cfg.Logger, conn, log.RoleClient, "", "CONNECTED", "")
	return conn, nil
}

// logState records a connection state change.
func logState(l log.Logger, c *Conn, role log.Role, from, to, reason string) {
	if l == nil {
		return
	}
	l.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ID(),
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    role,
		RemoteAddr:   c.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
