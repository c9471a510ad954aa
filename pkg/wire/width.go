package wire

import (
	"encoding/binary"
	"fmt"
)

// Pack converts value to its byte sequence at the given width, least
// significant byte first. Byte keeps the low 8 bits, Word the low 16 bits.
func Pack(value uint32, width DataWidth) ([]byte, error) {
	switch width {
	case WidthByte:
		return []byte{byte(value)}, nil
	case WidthWord:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(value))
		return buf, nil
	case WidthLong:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, value)
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
}

// Unpack reads one unit of the given width from data starting at start.
// It is the inverse of Pack.
func Unpack(data []byte, width DataWidth, start int) (uint32, error) {
	size := width.Size()
	if size == 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
	if start < 0 || start+size > len(data) {
		return 0, fmt.Errorf("%w: %s unit at %d exceeds %d data bytes", ErrInvalidField, width, start, len(data))
	}
	switch width {
	case WidthByte:
		return uint32(data[start]), nil
	case WidthWord:
		return uint32(binary.LittleEndian.Uint16(data[start:])), nil
	default:
		return binary.LittleEndian.Uint32(data[start:]), nil
	}
}

// PackUnits packs each value at the given width and concatenates the result.
func PackUnits(values []uint32, width DataWidth) ([]byte, error) {
	size := width.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
	out := make([]byte, 0, len(values)*size)
	for _, v := range values {
		b, err := Pack(v, width)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// UnpackUnits splits data into width-units. The data length must be a
// multiple of the unit size.
func UnpackUnits(data []byte, width DataWidth) ([]uint32, error) {
	size := width.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d data bytes are not a whole number of %s units", ErrInvalidField, len(data), width)
	}
	out := make([]uint32, 0, len(data)/size)
	for i := 0; i < len(data); i += size {
		v, err := Unpack(data, width, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
