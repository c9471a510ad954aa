//go:build linux

package hw

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// DefaultBusPattern is the device path pattern used by DevBus.
const DefaultBusPattern = "/dev/i2c-%d"

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// DevBus opens I2C buses through the Linux i2c-dev interface. Registers are
// addressed with one byte; multi-byte values are transferred least
// significant byte first.
type DevBus struct {
	// Pattern overrides DefaultBusPattern. It receives the bus number.
	Pattern string
}

// NewDevBus returns a provider using DefaultBusPattern.
func NewDevBus() *DevBus {
	return &DevBus{Pattern: DefaultBusPattern}
}

// OpenBus opens the character device of bus.
func (d *DevBus) OpenBus(bus uint32) (Bus, error) {
	pattern := d.Pattern
	if pattern == "" {
		pattern = DefaultBusPattern
	}
	path := fmt.Sprintf(pattern, bus)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, wrapIO("open "+path, err)
	}
	return &devBusSession{fd: fd, path: path}, nil
}

type devBusSession struct {
	mu     sync.Mutex
	fd     int
	path   string
	target bool
}

var _ Bus = (*devBusSession)(nil)

func (b *devBusSession) check(width wire.DataWidth) error {
	if b.fd < 0 {
		return fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if !b.target {
		return ioErrorf("%s has no target selected", b.path)
	}
	if !width.IsSupported() {
		return ioErrorf("unsupported width %s", width)
	}
	return nil
}

func (b *devBusSession) SetTarget(slave uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if slave > 0x3FF {
		return ioErrorf("slave address %#x out of range", slave)
	}
	if err := unix.IoctlSetInt(b.fd, i2cSlave, int(slave)); err != nil {
		return wrapIO(fmt.Sprintf("select slave %#x on %s", slave, b.path), err)
	}
	b.target = true
	return nil
}

func (b *devBusSession) Read(register uint32, width wire.DataWidth) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(width); err != nil {
		return 0, err
	}
	return b.read(register, width)
}

func (b *devBusSession) read(register uint32, width wire.DataWidth) (uint32, error) {
	if err := b.xfer([]byte{byte(register)}); err != nil {
		return 0, err
	}
	buf := make([]byte, width.Size())
	n, err := unix.Read(b.fd, buf)
	if err != nil {
		return 0, wrapIO("read "+b.path, err)
	}
	if n != len(buf) {
		return 0, ioErrorf("short read on %s: %d of %d bytes", b.path, n, len(buf))
	}
	v, err := wire.Unpack(buf, width, 0)
	if err != nil {
		return 0, wrapIO("read "+b.path, err)
	}
	return v, nil
}

func (b *devBusSession) Write(register uint32, width wire.DataWidth, value uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(width); err != nil {
		return 0, err
	}
	data, err := wire.Pack(value, width)
	if err != nil {
		return 0, wrapIO("write "+b.path, err)
	}
	if err := b.xfer(append([]byte{byte(register)}, data...)); err != nil {
		return 0, err
	}
	return b.read(register, width)
}

func (b *devBusSession) xfer(buf []byte) error {
	n, err := unix.Write(b.fd, buf)
	if err != nil {
		return wrapIO("write "+b.path, err)
	}
	if n != len(buf) {
		return ioErrorf("short write on %s: %d of %d bytes", b.path, n, len(buf))
	}
	return nil
}

func (b *devBusSession) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	if err != nil {
		return wrapIO("close "+b.path, err)
	}
	return nil
}
