package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		width DataWidth
		want  []byte
	}{
		{name: "byte", value: 0xA5, width: WidthByte, want: []byte{0xA5}},
		{name: "word", value: 0x1234, width: WidthWord, want: []byte{0x34, 0x12}},
		{name: "long", value: 0xAABBCCDD, width: WidthLong, want: []byte{0xDD, 0xCC, 0xBB, 0xAA}},
		{name: "byte zero", value: 0, width: WidthByte, want: []byte{0x00}},
		{name: "long max", value: 0xFFFFFFFF, width: WidthLong, want: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pack(tt.value, tt.width)
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Pack = % x, want % x", got, tt.want)
			}

			back, err := Unpack(got, tt.width, 0)
			if err != nil {
				t.Fatalf("Unpack failed: %v", err)
			}
			if back != tt.value {
				t.Errorf("Unpack = %#x, want %#x", back, tt.value)
			}
		})
	}
}

func TestPackTruncatesToWidth(t *testing.T) {
	got, err := Pack(0x1234, WidthByte)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x34}) {
		t.Errorf("Pack = % x, want 34", got)
	}

	got, err = Pack(0xAABBCCDD, WidthWord)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xDD, 0xCC}) {
		t.Errorf("Pack = % x, want dd cc", got)
	}
}

func TestUnpackAtOffset(t *testing.T) {
	data := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	v, err := Unpack(data, WidthWord, 2)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if v != 0x3322 {
		t.Errorf("Unpack = %#x, want 0x3322", v)
	}

	v, err = Unpack(data, WidthLong, 1)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if v != 0x44332211 {
		t.Errorf("Unpack = %#x, want 0x44332211", v)
	}
}

func TestUnsupportedWidth(t *testing.T) {
	if _, err := Pack(1, WidthUnsupported); !errors.Is(err, ErrUnsupportedWidth) {
		t.Errorf("Pack: expected ErrUnsupportedWidth, got %v", err)
	}
	if _, err := Unpack([]byte{1, 2, 3, 4}, DataWidth(7), 0); !errors.Is(err, ErrUnsupportedWidth) {
		t.Errorf("Unpack: expected ErrUnsupportedWidth, got %v", err)
	}
	if _, err := PackUnits([]uint32{1}, WidthUnsupported); !errors.Is(err, ErrUnsupportedWidth) {
		t.Errorf("PackUnits: expected ErrUnsupportedWidth, got %v", err)
	}
}

func TestUnpackShortData(t *testing.T) {
	if _, err := Unpack([]byte{1, 2, 3}, WidthLong, 0); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
	if _, err := Unpack([]byte{1, 2}, WidthWord, 1); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
	if _, err := Unpack([]byte{1}, WidthByte, -1); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}

func TestPackUnitsRoundTrip(t *testing.T) {
	values := []uint32{0x1234, 0xBEEF, 0x0001}
	data, err := PackUnits(values, WidthWord)
	if err != nil {
		t.Fatalf("PackUnits failed: %v", err)
	}
	want := []byte{0x34, 0x12, 0xEF, 0xBE, 0x01, 0x00}
	if !bytes.Equal(data, want) {
		t.Fatalf("PackUnits = % x, want % x", data, want)
	}

	back, err := UnpackUnits(data, WidthWord)
	if err != nil {
		t.Fatalf("UnpackUnits failed: %v", err)
	}
	if len(back) != len(values) {
		t.Fatalf("UnpackUnits returned %d units, want %d", len(back), len(values))
	}
	for i := range values {
		if back[i] != values[i] {
			t.Errorf("unit %d = %#x, want %#x", i, back[i], values[i])
		}
	}
}

func TestUnpackUnitsMisaligned(t *testing.T) {
	_, err := UnpackUnits([]byte{1, 2, 3}, WidthWord)
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}
