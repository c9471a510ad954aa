package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/connection"
	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// DefaultRequestTimeout applies to requests whose header timeout is unset.
const DefaultRequestTimeout = 5 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout is the header timeout in milliseconds stamped on requests
	// built by the helper methods (0 = leave the header default).
	Timeout int16

	// Retries is the header retry count stamped on requests built by the
	// helper methods.
	Retries int

	// DefaultTimeout applies when a request's header timeout is unset
	// (0 = DefaultRequestTimeout).
	DefaultTimeout time.Duration

	// Backoff paces retries (nil = connection.NewBackoff()).
	Backoff *connection.Backoff

	// ConnID tags protocol log events.
	ConnID string

	// Logger receives protocol message events. Optional.
	Logger log.Logger

	// Log receives operational messages (nil = slog.Default()).
	Log *slog.Logger
}

// Client sends HWCP requests over a transport and waits for the matching
// replies. Requests are sent one at a time.
type Client struct {
	mu     sync.Mutex
	t      transport.Transport
	cfg    ClientConfig
	slog   *slog.Logger
	nextID uint16
}

// NewClient creates a client on t.
func NewClient(t transport.Transport, cfg ClientConfig) *Client {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultRequestTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = connection.NewBackoff()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	l := cfg.Log
	if l == nil {
		l = slog.Default()
	}
	return &Client{t: t, cfg: cfg, slog: l.With("component", "client")}
}

// NextRequestID returns a fresh request id. Ids wrap at 65535.
func (c *Client) NextRequestID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

// NewRequest returns a request with a fresh id and the client's header
// timeout and retries.
func (c *Client) NewRequest(cmd wire.CommandType, access wire.AccessTarget) wire.Message {
	req := wire.NewRequest(cmd, access, c.NextRequestID())
	if c.cfg.Timeout > 0 {
		req.SetTimeout(c.cfg.Timeout)
	}
	if c.cfg.Retries > 0 {
		// Range checked by SetRetries; an out-of-range value keeps the default.
		_ = req.SetRetries(c.cfg.Retries)
	}
	return req
}

// Do sends req and returns the matching reply.
//
// Each attempt waits up to the header timeout (milliseconds; the client
// default when unset) for a reply with the same request id. Replies with
// other ids are stale and skipped. Failed attempts are repeated up to the
// header retry count, paced by the client backoff. A Nack reply is returned
// together with an error wrapping ErrNack and is not retried. A server that
// could not decode the request answers with a bare Nack of request id 0;
// it fails the request in flight with ErrRejected.
func (c *Client) Do(ctx context.Context, req wire.Message) (wire.Message, error) {
	data, err := wire.Encode(req)
	if err != nil {
		return wire.Message{}, fmt.Errorf("failed to encode request: %w", err)
	}

	timeout := c.cfg.DefaultTimeout
	if req.Timeout() > 0 {
		timeout = time.Duration(req.Timeout()) * time.Millisecond
	}
	attempts := 1
	if req.Retries() > 0 {
		attempts += int(req.Retries())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Backoff.Reset()

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			delay := c.cfg.Backoff.Next()
			c.slog.Debug("retrying request", "request_id", req.RequestID(), "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return wire.Message{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		reply, err := c.attempt(ctx, req, data, timeout)
		switch {
		case err == nil:
			return reply, nil
		case errors.Is(err, ErrNack):
			return reply, err
		case ctx.Err() != nil:
			return wire.Message{}, ctx.Err()
		}
		lastErr = err
	}
	return wire.Message{}, fmt.Errorf("request %d failed after %d attempts: %w", req.RequestID(), attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req wire.Message, data []byte, timeout time.Duration) (wire.Message, error) {
	if err := c.t.Send(data); err != nil {
		return wire.Message{}, fmt.Errorf("failed to send request: %w", err)
	}
	c.logMessage(log.DirectionOut, req)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wire.Message{}, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
		}
		raw, err := c.t.Receive(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return wire.Message{}, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
			}
			return wire.Message{}, fmt.Errorf("failed to receive reply: %w", err)
		}

		reply, err := wire.Decode(raw)
		if err != nil {
			c.slog.Warn("undecodable reply", "request_id", req.RequestID(), "error", err)
			continue
		}
		if isRejection(reply) {
			c.logMessage(log.DirectionIn, reply)
			return reply, fmt.Errorf("%w: request %d: %w", ErrNack, req.RequestID(), ErrRejected)
		}
		if reply.Ack() == wire.AckUndefined || reply.RequestID() != req.RequestID() {
			c.slog.Debug("skipping stale message",
				"want", req.RequestID(), "got", reply.RequestID(), "ack", reply.Ack().String())
			continue
		}
		c.logMessage(log.DirectionIn, reply)

		if reply.Command() != req.Command() || reply.Access() != req.Access() {
			return reply, fmt.Errorf("%w: %s %s for %s %s", ErrUnexpectedReply,
				reply.Command(), reply.Access(), req.Command(), req.Access())
		}
		if reply.Ack() == wire.AckNack {
			return reply, fmt.Errorf("%w: request %d (%s %s)", ErrNack, req.RequestID(), req.Command(), req.Access())
		}
		return reply, nil
	}
}

// isRejection reports whether m is the Nack a server sends for a frame it
// could not decode. It carries no command, access target or request id.
func isRejection(m wire.Message) bool {
	return m.Ack() == wire.AckNack &&
		m.Command() == wire.CommandUnsupported &&
		m.Access() == wire.AccessUnsupported &&
		m.RequestID() == 0
}

func (c *Client) logMessage(dir log.Direction, m wire.Message) {
	if c.cfg.Logger == nil {
		return
	}
	c.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.cfg.ConnID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Message:      log.NewMessageEvent(m),
	})
}

// ReadBus reads n consecutive registers of a bus peripheral.
func (c *Client) ReadBus(ctx context.Context, bus, slave, register uint32, width wire.DataWidth, n int) ([]uint32, error) {
	req := c.NewRequest(wire.CommandRead, wire.AccessI2C)
	p := wire.BusAccess{Bus: bus, Slave: slave, Register: register, Width: width}
	if err := req.SetPayload(p, wire.WithReadLength(n)); err != nil {
		return nil, err
	}
	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := reply.BusAccess()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	return wire.UnpackUnits(got.Data, width)
}

// WriteBus writes values to consecutive registers of a bus peripheral and
// returns the values read back.
func (c *Client) WriteBus(ctx context.Context, bus, slave, register uint32, width wire.DataWidth, values []uint32) ([]uint32, error) {
	data, err := wire.PackUnits(values, width)
	if err != nil {
		return nil, err
	}
	req := c.NewRequest(wire.CommandWrite, wire.AccessI2C)
	if err := req.SetPayload(wire.BusAccess{Bus: bus, Slave: slave, Register: register, Width: width, Data: data}); err != nil {
		return nil, err
	}
	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := reply.BusAccess()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	return wire.UnpackUnits(got.Data, width)
}

// ReadRegister reads n units from an XADC, GPIO or RAW_REGISTER block.
func (c *Client) ReadRegister(ctx context.Context, access wire.AccessTarget, address, register uint32, width wire.DataWidth, n int) ([]uint32, error) {
	if !access.IsBasic() {
		return nil, fmt.Errorf("%w: %s is not a register block", ErrUnsupportedAccess, access)
	}
	shape := wire.AccessShape(access)
	req := c.NewRequest(wire.CommandRead, access)
	p := wire.BasicAccess{Kind: shape, Address: address, Register: register, Width: width}
	if err := req.SetPayload(p, wire.WithReadLength(n)); err != nil {
		return nil, err
	}
	return c.basicUnits(ctx, req, shape, width)
}

// WriteRegister writes values to an XADC, GPIO or RAW_REGISTER block and
// returns the values read back.
func (c *Client) WriteRegister(ctx context.Context, access wire.AccessTarget, address, register uint32, width wire.DataWidth, values []uint32) ([]uint32, error) {
	if !access.IsBasic() {
		return nil, fmt.Errorf("%w: %s is not a register block", ErrUnsupportedAccess, access)
	}
	data, err := wire.PackUnits(values, width)
	if err != nil {
		return nil, err
	}
	shape := wire.AccessShape(access)
	req := c.NewRequest(wire.CommandWrite, access)
	if err := req.SetPayload(wire.BasicAccess{Kind: shape, Address: address, Register: register, Width: width, Data: data}); err != nil {
		return nil, err
	}
	return c.basicUnits(ctx, req, shape, width)
}

func (c *Client) basicUnits(ctx context.Context, req wire.Message, shape wire.Shape, width wire.DataWidth) ([]uint32, error) {
	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := reply.BasicAccess(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	return wire.UnpackUnits(got.Data, width)
}

// ReadPaged reads n units from a DDR, QDR or QSPI page.
func (c *Client) ReadPaged(ctx context.Context, access wire.AccessTarget, address, page, offset uint32, width wire.DataWidth, n int) ([]uint32, error) {
	if !access.IsPagedMemory() {
		return nil, fmt.Errorf("%w: %s is not paged memory", ErrUnsupportedAccess, access)
	}
	shape := wire.AccessShape(access)
	req := c.NewRequest(wire.CommandRead, access)
	p := wire.PagedMemoryAccess{Kind: shape, Address: address, Page: page, Offset: offset, Width: width}
	if err := req.SetPayload(p, wire.WithReadLength(n)); err != nil {
		return nil, err
	}
	return c.pagedUnits(ctx, req, shape, width)
}

// WritePaged writes values to a DDR, QDR or QSPI page and returns the values
// read back.
func (c *Client) WritePaged(ctx context.Context, access wire.AccessTarget, address, page, offset uint32, width wire.DataWidth, values []uint32) ([]uint32, error) {
	if !access.IsPagedMemory() {
		return nil, fmt.Errorf("%w: %s is not paged memory", ErrUnsupportedAccess, access)
	}
	data, err := wire.PackUnits(values, width)
	if err != nil {
		return nil, err
	}
	shape := wire.AccessShape(access)
	req := c.NewRequest(wire.CommandWrite, access)
	if err := req.SetPayload(wire.PagedMemoryAccess{Kind: shape, Address: address, Page: page, Offset: offset, Width: width, Data: data}); err != nil {
		return nil, err
	}
	return c.pagedUnits(ctx, req, shape, width)
}

func (c *Client) pagedUnits(ctx context.Context, req wire.Message, shape wire.Shape, width wire.DataWidth) ([]uint32, error) {
	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := reply.PagedMemoryAccess(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	return wire.UnpackUnits(got.Data, width)
}

// ConfigureBus applies cfg to a bus peripheral.
func (c *Client) ConfigureBus(ctx context.Context, cfg wire.BusConfig) error {
	req := c.NewRequest(wire.CommandConfigure, wire.AccessI2C)
	if err := req.SetPayload(cfg); err != nil {
		return err
	}
	_, err := c.Do(ctx, req)
	return err
}

// ConfigureModule stores a module configuration on the server.
func (c *Client) ConfigureModule(ctx context.Context, mc wire.ModuleConfig) error {
	req := c.NewRequest(wire.CommandConfigure, wire.AccessUnsupported)
	if err := req.SetPayload(mc); err != nil {
		return err
	}
	_, err := c.Do(ctx, req)
	return err
}

// Notify sends an unsolicited NOTIFY (or ALERT when alert is set) to the
// server and waits for its acknowledgement.
func (c *Client) Notify(ctx context.Context, access wire.AccessTarget, alert bool) error {
	cmd := wire.CommandNotify
	if alert {
		cmd = wire.CommandAlert
	}
	_, err := c.Do(ctx, c.NewRequest(cmd, access))
	return err
}
