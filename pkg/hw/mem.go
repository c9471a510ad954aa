package hw

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// MemMapper is a Mapper over in-memory banks. A bank can be mapped by one
// holder at a time.
type MemMapper struct {
	mu     sync.Mutex
	banks  []*memBank
	mapped int
}

type memBank struct {
	base uint32
	data []byte
	held bool
}

func (b *memBank) end() uint64 {
	return uint64(b.base) + uint64(len(b.data))
}

// NewMemMapper returns a mapper with no banks.
func NewMemMapper() *MemMapper {
	return &MemMapper{}
}

// AddBank adds a zeroed bank of size bytes at physical address base. Banks
// may not overlap.
func (m *MemMapper) AddBank(base, size uint32) error {
	if size == 0 {
		return fmt.Errorf("empty bank at %#x", base)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	nb := &memBank{base: base, data: make([]byte, size)}
	for _, b := range m.banks {
		if uint64(nb.base) < b.end() && uint64(b.base) < nb.end() {
			return fmt.Errorf("bank %#x+%d overlaps bank %#x+%d", base, size, b.base, len(b.data))
		}
	}
	m.banks = append(m.banks, nb)
	sort.Slice(m.banks, func(i, j int) bool { return m.banks[i].base < m.banks[j].base })
	return nil
}

// Mapped returns the number of regions currently held.
func (m *MemMapper) Mapped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapped
}

// Load copies data into memory at addr.
func (m *MemMapper) Load(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, off, err := m.find(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b.data[off:], data)
	return nil
}

// Dump returns a copy of n bytes of memory at addr.
func (m *MemMapper) Dump(addr, n uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, off, err := m.find(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out, nil
}

// Map returns an exclusive window onto the bank containing the range.
func (m *MemMapper) Map(base, length uint32) (Region, error) {
	if length == 0 {
		return nil, ioErrorf("empty mapping at %#x", base)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, off, err := m.find(base, length)
	if err != nil {
		return nil, err
	}
	if b.held {
		return nil, fmt.Errorf("%w: bank %#x: %w", ErrHardwareIO, b.base, ErrBusy)
	}
	b.held = true
	m.mapped++
	return &memRegion{m: m, bank: b, start: off, size: length}, nil
}

func (m *MemMapper) find(addr, n uint32) (*memBank, uint32, error) {
	end := uint64(addr) + uint64(n)
	for _, b := range m.banks {
		if addr >= b.base && end <= b.end() {
			return b, addr - b.base, nil
		}
	}
	return nil, 0, ioErrorf("no memory at %#x+%d", addr, n)
}

type memRegion struct {
	m      *MemMapper
	bank   *memBank
	start  uint32
	size   uint32
	closed bool
}

var _ Region = (*memRegion)(nil)

func (r *memRegion) Size() uint32 { return r.size }

func (r *memRegion) ReadAt(offset uint32, width wire.DataWidth) (uint32, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if err := checkAccess(offset, r.size, width); err != nil {
		return 0, err
	}
	v, err := wire.Unpack(r.bank.data, width, int(r.start+offset))
	if err != nil {
		return 0, wrapIO("read", err)
	}
	return v, nil
}

func (r *memRegion) WriteAt(offset uint32, width wire.DataWidth, value uint32) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: %w", ErrHardwareIO, ErrClosed)
	}
	if err := checkAccess(offset, r.size, width); err != nil {
		return err
	}
	b, err := wire.Pack(value, width)
	if err != nil {
		return wrapIO("write", err)
	}
	copy(r.bank.data[r.start+offset:], b)
	return nil
}

func (r *memRegion) Close() error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.bank.held = false
	r.m.mapped--
	return nil
}
