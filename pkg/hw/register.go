package hw

import (
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// Register is a session on one memory-mapped register at a fixed width.
type Register struct {
	region Region
	width  wire.DataWidth
}

// OpenRegister maps the register at addr for accesses of the given width.
// The session must be closed.
func OpenRegister(m Mapper, addr uint32, width wire.DataWidth) (*Register, error) {
	size := width.Size()
	if size == 0 {
		return nil, ioErrorf("unsupported width %s", width)
	}
	r, err := m.Map(addr, uint32(size))
	if err != nil {
		return nil, err
	}
	return &Register{region: r, width: width}, nil
}

// Width returns the access width of the session.
func (r *Register) Width() wire.DataWidth {
	return r.width
}

// Read returns the register value.
func (r *Register) Read() (uint32, error) {
	return r.region.ReadAt(0, r.width)
}

// Write stores value and returns the value read back from the register.
func (r *Register) Write(value uint32) (uint32, error) {
	if err := r.region.WriteAt(0, r.width, value); err != nil {
		return 0, err
	}
	return r.region.ReadAt(0, r.width)
}

// Close releases the mapping.
func (r *Register) Close() error {
	return r.region.Close()
}
