package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hwcp-protocol/hwcp-go/pkg/hw"
	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// DefaultPageSize is the page size of paged memory targets without an
// explicit one.
const DefaultPageSize = 4096

// ServerConfig configures a request server.
type ServerConfig struct {
	// Module names the hardware module in logs.
	Module string

	// Memory serves XADC, GPIO, RAW_REGISTER, DDR, QDR and QSPI requests.
	Memory hw.Mapper

	// Bus serves I2C requests.
	Bus hw.BusProvider

	// PageSizes gives the page size per paged memory target
	// (missing = DefaultPageSize).
	PageSizes map[wire.AccessTarget]uint32

	// MaxMessageSize is the frame limit replies must fit in
	// (0 = transport.DefaultMaxMessageSize). Reads asking for more units
	// than a reply can carry are refused.
	MaxMessageSize uint32

	// RateLimit caps requests per second per connection (0 = unlimited).
	// RateBurst is the bucket size (0 = 1).
	RateLimit rate.Limit
	RateBurst int

	// Metrics records request counters. Optional.
	Metrics *Metrics

	// Logger receives protocol message and error events. Optional.
	Logger log.Logger

	// Log receives operational messages (nil = slog.Default()).
	Log *slog.Logger

	// OnNotify is called for every acknowledged NOTIFY or ALERT message.
	OnNotify func(wire.Message)
}

type busKey struct {
	bus, slave uint32
}

// Server answers HWCP requests against hardware collaborators. Requests are
// served one at a time across all connections; each one opens, uses and
// releases its hardware session before the next starts.
type Server struct {
	cfg  ServerConfig
	slog *slog.Logger

	mu         sync.Mutex
	busConfigs map[busKey]wire.BusConfig
	modules    map[string]wire.ModuleConfig
}

// NewServer creates a request server.
func NewServer(cfg ServerConfig) *Server {
	l := cfg.Log
	if l == nil {
		l = slog.Default()
	}
	if cfg.Module != "" {
		l = l.With("module", cfg.Module)
	}
	return &Server{
		cfg:        cfg,
		slog:       l.With("component", "interaction"),
		busConfigs: make(map[busKey]wire.BusConfig),
		modules:    make(map[string]wire.ModuleConfig),
	}
}

// HandleRequest serves one decoded request and returns the reply. Failures
// produce a Nack reply carrying the request's header.
func (s *Server) HandleRequest(ctx context.Context, req wire.Message) wire.Message {
	reply, err := s.handle(ctx, req)
	if err != nil {
		s.slog.Warn("request failed",
			"request_id", req.RequestID(),
			"command", req.Command().String(),
			"access", req.Access().String(),
			"error", err)
		return req.Reply(wire.AckNack)
	}
	return reply
}

func (s *Server) handle(ctx context.Context, req wire.Message) (wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return wire.Message{}, err
	}
	if req.Ack() != wire.AckUndefined {
		return wire.Message{}, fmt.Errorf("%w: ack is %s", ErrNotRequest, req.Ack())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Command() {
	case wire.CommandRead:
		return s.handleRead(req)
	case wire.CommandWrite:
		return s.handleWrite(req)
	case wire.CommandConfigure:
		return s.handleConfigure(req)
	case wire.CommandNotify, wire.CommandAlert:
		return s.handleNotify(req), nil
	default:
		return wire.Message{}, fmt.Errorf("%w: %s", ErrUnsupportedCommand, req.Command())
	}
}

func (s *Server) handleRead(req wire.Message) (wire.Message, error) {
	n := int(req.ReadLength())
	if n < 1 {
		return wire.Message{}, fmt.Errorf("%w: read length %d", wire.ErrMissingReadLength, n)
	}
	if limit := s.maxReadUnits(); n > limit {
		return wire.Message{}, fmt.Errorf("%w: read length %d exceeds %d units per reply", wire.ErrInvalidField, n, limit)
	}

	access := req.Access()
	switch {
	case access == wire.AccessI2C:
		p, err := req.BusAccess()
		if err != nil {
			return wire.Message{}, err
		}
		values, err := s.readBus(p, n)
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = wire.PackUnits(values, p.Width); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	case access.IsBasic():
		p, err := req.BasicAccess(wire.AccessShape(access))
		if err != nil {
			return wire.Message{}, err
		}
		addr, err := offsetAddress(p.Address, uint64(p.Register))
		if err != nil {
			return wire.Message{}, err
		}
		values, err := s.readMemory(addr, p.Width, n)
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = wire.PackUnits(values, p.Width); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	case access.IsPagedMemory():
		p, err := req.PagedMemoryAccess(wire.AccessShape(access))
		if err != nil {
			return wire.Message{}, err
		}
		addr, err := s.pagedAddress(access, p)
		if err != nil {
			return wire.Message{}, err
		}
		values, err := s.readMemory(addr, p.Width, n)
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = wire.PackUnits(values, p.Width); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	default:
		return wire.Message{}, fmt.Errorf("%w: %s %s", ErrUnsupportedAccess, req.Command(), access)
	}
}

// maxReadUnits is the largest read length whose reply fits in one frame.
func (s *Server) maxReadUnits() int {
	size := s.cfg.MaxMessageSize
	if size == 0 {
		size = transport.DefaultMaxMessageSize
	}
	return wire.MaxUnits(int(size))
}

// handleWrite writes the request's data units and replies with the values
// read back afterwards.
func (s *Server) handleWrite(req wire.Message) (wire.Message, error) {
	access := req.Access()
	switch {
	case access == wire.AccessI2C:
		p, err := req.BusAccess()
		if err != nil {
			return wire.Message{}, err
		}
		values, err := wire.UnpackUnits(p.Data, p.Width)
		if err != nil {
			return wire.Message{}, err
		}
		back, err := s.writeBus(p, values)
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = wire.PackUnits(back, p.Width); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	case access.IsBasic():
		p, err := req.BasicAccess(wire.AccessShape(access))
		if err != nil {
			return wire.Message{}, err
		}
		addr, err := offsetAddress(p.Address, uint64(p.Register))
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = s.writeMemory(addr, p.Width, p.Data); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	case access.IsPagedMemory():
		p, err := req.PagedMemoryAccess(wire.AccessShape(access))
		if err != nil {
			return wire.Message{}, err
		}
		addr, err := s.pagedAddress(access, p)
		if err != nil {
			return wire.Message{}, err
		}
		if p.Data, err = s.writeMemory(addr, p.Width, p.Data); err != nil {
			return wire.Message{}, err
		}
		return ackWith(req, p)

	default:
		return wire.Message{}, fmt.Errorf("%w: %s %s", ErrUnsupportedAccess, req.Command(), access)
	}
}

func (s *Server) handleConfigure(req wire.Message) (wire.Message, error) {
	switch req.Access() {
	case wire.AccessI2C:
		cfg, err := req.BusConfig()
		if err != nil {
			return wire.Message{}, err
		}
		if v, ok := numericParam(cfg); ok {
			if _, err := s.writeBus(wire.BusAccess{
				Bus:      cfg.Bus,
				Slave:    cfg.Slave,
				Register: cfg.Register,
				Width:    cfg.Width,
			}, []uint32{v}); err != nil {
				return wire.Message{}, err
			}
		}
		s.busConfigs[busKey{cfg.Bus, cfg.Slave}] = cfg
		s.slog.Info("bus configured", "bus", cfg.Bus, "slave", cfg.Slave, "config", cfg.String())
		return ackWith(req, cfg)

	case wire.AccessUnsupported:
		mc, err := req.ModuleConfig()
		if err != nil {
			return wire.Message{}, err
		}
		if mc.Name == "" {
			return wire.Message{}, fmt.Errorf("%w: module config without a name", wire.ErrInvalidField)
		}
		s.modules[mc.Name] = mc
		s.slog.Info("module configured", "name", mc.Name, "parameters", mc.Params.Len())
		return ackWith(req, mc)

	default:
		return wire.Message{}, fmt.Errorf("%w: %s %s", ErrUnsupportedAccess, req.Command(), req.Access())
	}
}

// numericParam returns the value a BusConfig writes to its register: the
// uint parameter, else the int parameter, else the byte parameter.
func numericParam(cfg wire.BusConfig) (uint32, bool) {
	switch {
	case cfg.UintParam != nil:
		return *cfg.UintParam, true
	case cfg.IntParam != nil:
		return uint32(*cfg.IntParam), true
	case cfg.ByteParam != nil:
		return uint32(*cfg.ByteParam), true
	default:
		return 0, false
	}
}

func (s *Server) handleNotify(req wire.Message) wire.Message {
	s.slog.Info("notification",
		"command", req.Command().String(),
		"access", req.Access().String(),
		"request_id", req.RequestID())
	if s.cfg.OnNotify != nil {
		s.cfg.OnNotify(req)
	}
	return req.Reply(wire.AckAck)
}

func ackWith(req wire.Message, p wire.Payload) (wire.Message, error) {
	reply, err := req.ReplyWith(wire.AckAck, p)
	if err != nil {
		return wire.Message{}, fmt.Errorf("failed to attach reply payload: %w", err)
	}
	return reply, nil
}

// BusConfig returns the last configuration applied to a bus peripheral.
func (s *Server) BusConfig(bus, slave uint32) (wire.BusConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.busConfigs[busKey{bus, slave}]
	return cfg, ok
}

// ModuleConfig returns the stored configuration of a module.
func (s *Server) ModuleConfig(name string) (wire.ModuleConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.modules[name]
	return mc, ok
}

// ModuleNames returns the names of configured modules, sorted.
func (s *Server) ModuleNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) readBus(p wire.BusAccess, n int) ([]uint32, error) {
	if s.cfg.Bus == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, wire.AccessI2C)
	}
	if err := checkRegisterSpan(p.Register, n); err != nil {
		return nil, err
	}
	values := make([]uint32, 0, n)
	err := hw.WithBus(s.cfg.Bus, p.Bus, p.Slave, func(b hw.Bus) error {
		for i := range n {
			v, err := b.Read(p.Register+uint32(i), p.Width)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return nil
	})
	return values, err
}

func (s *Server) writeBus(p wire.BusAccess, values []uint32) ([]uint32, error) {
	if s.cfg.Bus == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, wire.AccessI2C)
	}
	if err := checkRegisterSpan(p.Register, len(values)); err != nil {
		return nil, err
	}
	back := make([]uint32, 0, len(values))
	err := hw.WithBus(s.cfg.Bus, p.Bus, p.Slave, func(b hw.Bus) error {
		for i, v := range values {
			got, err := b.Write(p.Register+uint32(i), p.Width, v)
			if err != nil {
				return err
			}
			back = append(back, got)
		}
		return nil
	})
	return back, err
}

func checkRegisterSpan(reg uint32, n int) error {
	if n > 0 && uint64(reg)+uint64(n-1) > math.MaxUint32 {
		return fmt.Errorf("%w: %d registers from %#x", wire.ErrInvalidField, n, reg)
	}
	return nil
}

func (s *Server) readMemory(addr uint32, width wire.DataWidth, n int) ([]uint32, error) {
	if s.cfg.Memory == nil {
		return nil, ErrNoBackend
	}
	length, err := span(addr, width, n)
	if err != nil {
		return nil, err
	}
	var values []uint32
	err = hw.WithRegion(s.cfg.Memory, addr, length, func(r hw.Region) error {
		var err error
		values, err = hw.ReadUnits(r, 0, width, n)
		return err
	})
	return values, err
}

// writeMemory writes packed data at addr and returns the packed read-back.
// A single unit goes through a register session.
func (s *Server) writeMemory(addr uint32, width wire.DataWidth, data []byte) ([]byte, error) {
	if s.cfg.Memory == nil {
		return nil, ErrNoBackend
	}
	values, err := wire.UnpackUnits(data, width)
	if err != nil {
		return nil, err
	}

	if len(values) == 1 {
		reg, err := hw.OpenRegister(s.cfg.Memory, addr, width)
		if err != nil {
			return nil, err
		}
		back, werr := reg.Write(values[0])
		if cerr := reg.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, werr
		}
		return wire.PackUnits([]uint32{back}, width)
	}

	length, err := span(addr, width, len(values))
	if err != nil {
		return nil, err
	}
	var back []uint32
	err = hw.WithRegion(s.cfg.Memory, addr, length, func(r hw.Region) error {
		if err := hw.WriteUnits(r, 0, width, values); err != nil {
			return err
		}
		var err error
		back, err = hw.ReadUnits(r, 0, width, len(values))
		return err
	})
	if err != nil {
		return nil, err
	}
	return wire.PackUnits(back, width)
}

// span returns the byte length of n units at addr, rejecting ranges that
// leave the 32-bit address space.
func span(addr uint32, width wire.DataWidth, n int) (uint32, error) {
	size := width.Size()
	if size == 0 {
		return 0, fmt.Errorf("%w: %s", wire.ErrUnsupportedWidth, width)
	}
	length := uint64(size) * uint64(n)
	if length > math.MaxUint32 || uint64(addr)+length > math.MaxUint32+1 {
		return 0, fmt.Errorf("%w: %d bytes at %#x exceed the address space", wire.ErrInvalidField, length, addr)
	}
	return uint32(length), nil
}

func offsetAddress(base uint32, offset uint64) (uint32, error) {
	addr := uint64(base) + offset
	if addr > math.MaxUint32 {
		return 0, fmt.Errorf("%w: address %#x overflows", wire.ErrInvalidField, addr)
	}
	return uint32(addr), nil
}

// pagedAddress resolves address + page*pageSize + offset.
func (s *Server) pagedAddress(access wire.AccessTarget, p wire.PagedMemoryAccess) (uint32, error) {
	pageSize := uint64(DefaultPageSize)
	if ps, ok := s.cfg.PageSizes[access]; ok && ps > 0 {
		pageSize = uint64(ps)
	}
	return offsetAddress(p.Address, uint64(p.Page)*pageSize+uint64(p.Offset))
}
