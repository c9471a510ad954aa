package hw

import (
	"fmt"
	"sync"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// SimBus is a BusProvider backed by in-memory peripherals. Each bus can be
// opened by one session at a time.
type SimBus struct {
	mu      sync.Mutex
	buses   map[uint32]map[uint32]*SimDevice
	held    map[uint32]bool
	current int
}

// SimDevice is a simulated bus peripheral with a flat register file.
type SimDevice struct {
	mu       sync.Mutex
	regs     map[uint32]uint32
	readOnly map[uint32]bool
}

// NewSimBus returns a provider with no peripherals.
func NewSimBus() *SimBus {
	return &SimBus{
		buses: make(map[uint32]map[uint32]*SimDevice),
		held:  make(map[uint32]bool),
	}
}

// AddDevice attaches a peripheral at slave on bus and returns it. Adding the
// same address twice returns the existing device.
func (s *SimBus) AddDevice(bus, slave uint32) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	devs, ok := s.buses[bus]
	if !ok {
		devs = make(map[uint32]*SimDevice)
		s.buses[bus] = devs
	}
	if d, ok := devs[slave]; ok {
		return d
	}
	d := &SimDevice{regs: make(map[uint32]uint32), readOnly: make(map[uint32]bool)}
	devs[slave] = d
	return d
}

// Open returns the number of sessions currently open.
func (s *SimBus) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OpenBus starts a session on bus.
func (s *SimBus) OpenBus(bus uint32) (Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buses[bus]; !ok {
		return nil, ioErrorf("no bus %d", bus)
	}
	if s.held[bus] {
		return nil, fmt.Errorf("%w: bus %d: %w", ErrHardwareIO, bus, ErrBusy)
	}
	s.held[bus] = true
	s.current++
	return &simSession{sim: s, bus: bus}, nil
}

// Set stores a register value directly.
func (d *SimDevice) Set(register, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[register] = value
}

// Get returns a register value.
func (d *SimDevice) Get(register uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[register]
}

// SetReadOnly makes bus writes to register ineffective.
func (d *SimDevice) SetReadOnly(register uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly[register] = true
}

func (d *SimDevice) read(register uint32, width wire.DataWidth) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[register] & widthMask(width)
}

func (d *SimDevice) write(register uint32, width wire.DataWidth, value uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readOnly[register] {
		d.regs[register] = value & widthMask(width)
	}
	return d.regs[register] & widthMask(width)
}

func widthMask(width wire.DataWidth) uint32 {
	switch width {
	case wire.WidthByte:
		return 0xFF
	case wire.WidthWord:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

type simSession struct {
	sim    *SimBus
	bus    uint32
	target *SimDevice
	slave  uint32
	closed bool
}

var _ Bus = (*simSession)(nil)

func (b *simSession) SetTarget(slave uint32) error {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	d, ok := b.sim.buses[b.bus][slave]
	if !ok {
		return ioErrorf("no device at bus %d slave %#x", b.bus, slave)
	}
	b.target = d
	b.slave = slave
	return nil
}

func (b *simSession) device(width wire.DataWidth) (*SimDevice, error) {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if b.target == nil {
		return nil, ioErrorf("bus %d has no target selected", b.bus)
	}
	if !width.IsSupported() {
		return nil, ioErrorf("unsupported width %s", width)
	}
	return b.target, nil
}

func (b *simSession) Read(register uint32, width wire.DataWidth) (uint32, error) {
	d, err := b.device(width)
	if err != nil {
		return 0, err
	}
	return d.read(register, width), nil
}

func (b *simSession) Write(register uint32, width wire.DataWidth, value uint32) (uint32, error) {
	d, err := b.device(width)
	if err != nil {
		return 0, err
	}
	return d.write(register, width, value), nil
}

func (b *simSession) Close() error {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.sim.held[b.bus] = false
	b.sim.current--
	return nil
}
