package interaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// ServeConn serves requests on c until it closes. It has the signature of a
// transport.Handler.
func (s *Server) ServeConn(ctx context.Context, c *transport.Conn) {
	if err := s.Serve(ctx, c, c.ID()); err != nil && ctx.Err() == nil {
		s.slog.Warn("connection ended", "conn", c.ID(), "error", err)
	}
}

// Serve runs the request loop on t: receive, decode, handle, encode, send.
// Frames that do not decode are answered with a Nack carrying a default
// header; failed requests are answered with a Nack carrying their header.
// Serve returns nil when the peer closes the stream.
func (s *Server) Serve(ctx context.Context, t transport.Transport, connID string) error {
	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(s.cfg.RateLimit, burst)
	}

	s.cfg.Metrics.sessionStarted()
	defer s.cfg.Metrics.sessionEnded()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := t.Receive(0)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}

		reply := s.process(ctx, connID, data, limiter)
		if err := s.send(t, connID, reply); err != nil {
			return err
		}
	}
}

// send encodes and sends reply. A reply too large for one frame is replaced
// by a Nack carrying its header.
func (s *Server) send(t transport.Transport, connID string, reply wire.Message) error {
	out, err := wire.Encode(reply)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	err = t.Send(out)
	if !errors.Is(err, transport.ErrMessageTooLarge) {
		return err
	}

	id := reply.RequestID()
	s.slog.Warn("reply too large", "conn", connID, "request_id", id, "size", len(out), "error", err)
	s.logError(connID, &id, err, "send reply")
	nack := reply.Reply(wire.AckNack)
	s.logMessage(connID, log.DirectionOut, nack, nil)
	if out, err = wire.Encode(nack); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return t.Send(out)
}

func (s *Server) process(ctx context.Context, connID string, data []byte, limiter *rate.Limiter) wire.Message {
	start := time.Now()

	req, err := wire.Decode(data)
	if err != nil {
		s.cfg.Metrics.decodeError()
		s.slog.Warn("undecodable request", "conn", connID, "size", len(data), "error", err)
		s.logError(connID, nil, err, "decode request")
		nack := wire.NewMessage()
		nack.SetAck(wire.AckNack)
		s.logMessage(connID, log.DirectionOut, nack, nil)
		return nack
	}
	s.logMessage(connID, log.DirectionIn, req, nil)

	var reply wire.Message
	if limiter != nil && !limiter.Allow() {
		s.cfg.Metrics.limited()
		err = ErrRateLimited
	} else {
		reply, err = s.handle(ctx, req)
	}
	if err != nil {
		id := req.RequestID()
		s.slog.Warn("request failed",
			"conn", connID,
			"request_id", id,
			"command", req.Command().String(),
			"access", req.Access().String(),
			"error", err)
		s.logError(connID, &id, err, "handle "+req.Command().String())
		reply = req.Reply(wire.AckNack)
	}

	elapsed := time.Since(start)
	s.cfg.Metrics.observe(req, reply.Ack(), elapsed)
	s.logMessage(connID, log.DirectionOut, reply, &elapsed)
	return reply
}

func (s *Server) logMessage(connID string, dir log.Direction, m wire.Message, elapsed *time.Duration) {
	if s.cfg.Logger == nil {
		return
	}
	me := log.NewMessageEvent(m)
	me.ProcessingTime = elapsed
	s.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleServer,
		Module:       s.cfg.Module,
		Message:      me,
	})
}

func (s *Server) logError(connID string, requestID *uint16, err error, op string) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleServer,
		Module:       s.cfg.Module,
		Error: &log.ErrorEventData{
			Layer:     log.LayerWire,
			Message:   err.Error(),
			RequestID: requestID,
			Context:   op,
		},
	})
}
