//go:build linux

package hw

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// DefaultMemDevice is the physical memory device used by DevMemMapper.
const DefaultMemDevice = "/dev/mem"

// DevMemMapper maps physical memory through /dev/mem. Windows are widened
// to whole pages internally; callers see only the requested range.
type DevMemMapper struct {
	// Path overrides DefaultMemDevice.
	Path string
}

// NewDevMemMapper returns a mapper over DefaultMemDevice.
func NewDevMemMapper() *DevMemMapper {
	return &DevMemMapper{Path: DefaultMemDevice}
}

// Map maps the pages covering [base, base+length).
func (m *DevMemMapper) Map(base, length uint32) (Region, error) {
	if length == 0 {
		return nil, ioErrorf("empty mapping at %#x", base)
	}
	path := m.Path
	if path == "" {
		path = DefaultMemDevice
	}

	page := uint64(unix.Getpagesize())
	aligned := uint64(base) &^ (page - 1)
	delta := uint64(base) - aligned
	span := (delta + uint64(length) + page - 1) &^ (page - 1)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, wrapIO("open "+path, err)
	}
	data, err := unix.Mmap(fd, int64(aligned), int(span), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	// The mapping outlives the descriptor.
	cerr := unix.Close(fd)
	if err != nil {
		return nil, wrapIO(fmt.Sprintf("mmap %#x+%d", aligned, span), err)
	}
	if cerr != nil {
		_ = unix.Munmap(data)
		return nil, wrapIO("close "+path, cerr)
	}
	return &devRegion{mapping: data, window: data[delta : delta+uint64(length)]}, nil
}

type devRegion struct {
	mu      sync.Mutex
	mapping []byte
	window  []byte
}

var _ Region = (*devRegion)(nil)

func (r *devRegion) Size() uint32 { return uint32(len(r.window)) }

func (r *devRegion) pointer(offset uint32, width wire.DataWidth) (unsafe.Pointer, error) {
	if r.mapping == nil {
		return nil, fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if err := checkAccess(offset, uint32(len(r.window)), width); err != nil {
		return nil, err
	}
	p := unsafe.Pointer(&r.window[offset])
	if uintptr(p)%uintptr(width.Size()) != 0 {
		return nil, ioErrorf("unaligned %s access at offset %#x", width, offset)
	}
	return p, nil
}

// ReadAt issues a single bus access of the requested width.
func (r *devRegion) ReadAt(offset uint32, width wire.DataWidth) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pointer(offset, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case wire.WidthByte:
		return uint32(*(*uint8)(p)), nil
	case wire.WidthWord:
		return uint32(*(*uint16)(p)), nil
	default:
		return atomic.LoadUint32((*uint32)(p)), nil
	}
}

func (r *devRegion) WriteAt(offset uint32, width wire.DataWidth, value uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pointer(offset, width)
	if err != nil {
		return err
	}
	switch width {
	case wire.WidthByte:
		*(*uint8)(p) = uint8(value)
	case wire.WidthWord:
		*(*uint16)(p) = uint16(value)
	default:
		atomic.StoreUint32((*uint32)(p), value)
	}
	return nil
}

func (r *devRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		return nil
	}
	err := unix.Munmap(r.mapping)
	r.mapping = nil
	r.window = nil
	if err != nil {
		return wrapIO("munmap", err)
	}
	return nil
}
