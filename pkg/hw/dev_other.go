//go:build !linux

package hw

// DefaultMemDevice is the physical memory device used by DevMemMapper.
const DefaultMemDevice = "/dev/mem"

// DefaultBusPattern is the device path pattern used by DevBus.
const DefaultBusPattern = "/dev/i2c-%d"

// DevMemMapper is only available on Linux.
type DevMemMapper struct {
	Path string
}

// NewDevMemMapper returns a mapper that always fails on this platform.
func NewDevMemMapper() *DevMemMapper {
	return &DevMemMapper{Path: DefaultMemDevice}
}

// Map fails with ErrHardwareIO.
func (m *DevMemMapper) Map(base, length uint32) (Region, error) {
	return nil, ioErrorf("%s is not supported on this platform", m.Path)
}

// DevBus is only available on Linux.
type DevBus struct {
	Pattern string
}

// NewDevBus returns a provider that always fails on this platform.
func NewDevBus() *DevBus {
	return &DevBus{Pattern: DefaultBusPattern}
}

// OpenBus fails with ErrHardwareIO.
func (d *DevBus) OpenBus(bus uint32) (Bus, error) {
	return nil, ioErrorf("i2c-dev is not supported on this platform")
}
