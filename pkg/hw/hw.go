package hw

import (
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// Region is an exclusively held window of device memory. Offsets are byte
// offsets from the start of the window.
type Region interface {
	// Size returns the window length in bytes.
	Size() uint32

	// ReadAt reads one unit of the given width at offset.
	ReadAt(offset uint32, width wire.DataWidth) (uint32, error)

	// WriteAt writes one unit of the given width at offset.
	WriteAt(offset uint32, width wire.DataWidth, value uint32) error

	// Close releases the window. Further use fails with ErrClosed.
	Close() error
}

// Mapper hands out Regions of physical address space.
type Mapper interface {
	// Map returns a window of length bytes starting at physical address base.
	Map(base, length uint32) (Region, error)
}

// Bus is an open session on one peripheral bus.
type Bus interface {
	// SetTarget selects the slave address used by subsequent accesses.
	SetTarget(slave uint32) error

	// Read reads one unit of the given width from register.
	Read(register uint32, width wire.DataWidth) (uint32, error)

	// Write writes value to register and returns the value read back.
	Write(register uint32, width wire.DataWidth, value uint32) (uint32, error)

	// Close releases the bus.
	Close() error
}

// BusProvider opens sessions on numbered buses.
type BusProvider interface {
	OpenBus(bus uint32) (Bus, error)
}

// WithRegion maps [base, base+length), runs fn and releases the mapping,
// whether fn succeeds, fails or panics. A close failure is reported when fn
// itself succeeded.
func WithRegion(m Mapper, base, length uint32, fn func(Region) error) (err error) {
	r, err := m.Map(base, length)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(r)
}

// WithBus opens bus, selects slave, runs fn and closes the session on every
// exit path.
func WithBus(p BusProvider, bus, slave uint32, fn func(Bus) error) (err error) {
	b, err := p.OpenBus(bus)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := b.SetTarget(slave); err != nil {
		return err
	}
	return fn(b)
}

// ReadUnits reads n consecutive units of the given width starting at offset.
// The whole span must lie inside the region.
func ReadUnits(r Region, offset uint32, width wire.DataWidth, n int) ([]uint32, error) {
	size := uint32(width.Size())
	if size == 0 {
		return nil, ioErrorf("unsupported width %s", width)
	}
	if n < 0 || uint64(offset)+uint64(n)*uint64(size) > uint64(r.Size()) {
		return nil, ioErrorf("%d %s units at offset %#x exceed region of %d bytes", n, width, offset, r.Size())
	}
	out := make([]uint32, 0, n)
	for i := range n {
		v, err := r.ReadAt(offset+uint32(i)*size, width)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteUnits writes values as consecutive units of the given width starting
// at offset.
func WriteUnits(r Region, offset uint32, width wire.DataWidth, values []uint32) error {
	size := uint32(width.Size())
	if size == 0 {
		return ioErrorf("unsupported width %s", width)
	}
	for i, v := range values {
		if err := r.WriteAt(offset+uint32(i)*size, width, v); err != nil {
			return err
		}
	}
	return nil
}

// checkAccess validates a width-sized access at offset inside a window of
// size bytes.
func checkAccess(offset, size uint32, width wire.DataWidth) error {
	n := uint64(width.Size())
	if n == 0 {
		return ioErrorf("unsupported width %s", width)
	}
	if uint64(offset)+n > uint64(size) {
		return ioErrorf("%s access at offset %#x exceeds %d byte window", width, offset, size)
	}
	return nil
}
