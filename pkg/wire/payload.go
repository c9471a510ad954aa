package wire

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// VoidPayload is the wire value of an absent payload.
const VoidPayload = "VOID_PAYLOAD"

// Configuration tree keys.
const (
	KeyBus         = "bus"
	KeySlave       = "slave"
	KeyRegister    = "register"
	KeyWidth       = "width"
	KeyUintParam   = "uint_param"
	KeyIntParam    = "int_param"
	KeyFloatParam  = "float_param"
	KeyStringParam = "string_param"
	KeyByteParam   = "byte_param"
	KeyModuleName  = "name"
	KeyParameters  = "parameters"
)

// Payload is one typed payload from the catalog: BusAccess, BasicAccess,
// PagedMemoryAccess, BusConfig or ModuleConfig.
type Payload interface {
	// Shape returns the payload's shape.
	Shape() Shape

	// Equal reports whether other has the same shape and content.
	Equal(other Payload) bool

	// String renders the payload for display.
	String() string

	// generic converts the payload into its wire form and returns the
	// number of data units it carries.
	generic() (genericPayload, int, error)
}

// genericKind is the closed set of wire payload forms.
type genericKind uint8

const (
	genericAbsent genericKind = iota
	genericScalars
	genericTree
)

// genericPayload is the shape-independent form a message stores and
// serializes. Values are never mutated after construction.
type genericPayload struct {
	kind    genericKind
	scalars []uint32
	tree    *Tree
}

// BusAccess reads or writes registers of a bus-attached peripheral.
type BusAccess struct {
	Bus      uint32
	Slave    uint32
	Register uint32
	Width    DataWidth
	Data     []byte
}

func (p BusAccess) Shape() Shape { return ShapeBusAccess }

func (p BusAccess) Equal(other Payload) bool {
	o, ok := other.(BusAccess)
	return ok && p.Bus == o.Bus && p.Slave == o.Slave && p.Register == o.Register &&
		p.Width == o.Width && bytes.Equal(p.Data, o.Data)
}

func (p BusAccess) String() string {
	return fmt.Sprintf("%s{bus=%#x slave=%#x register=%#x width=%s data=%s}",
		p.Shape(), p.Bus, p.Slave, p.Register, p.Width, formatData(p.Data))
}

func (p BusAccess) generic() (genericPayload, int, error) {
	return registerGeneric(p.Width, p.Data, p.Bus, p.Slave, p.Register)
}

// BasicAccess reads or writes a memory-mapped register block. Kind selects
// the target: ShapeXADC, ShapeGPIO or ShapeRawRegister.
type BasicAccess struct {
	Kind     Shape
	Address  uint32
	Register uint32
	Width    DataWidth
	Data     []byte
}

func (p BasicAccess) Shape() Shape { return p.Kind }

func (p BasicAccess) Equal(other Payload) bool {
	o, ok := other.(BasicAccess)
	return ok && p.Kind == o.Kind && p.Address == o.Address && p.Register == o.Register &&
		p.Width == o.Width && bytes.Equal(p.Data, o.Data)
}

func (p BasicAccess) String() string {
	return fmt.Sprintf("%s{address=%#x register=%#x width=%s data=%s}",
		p.Kind, p.Address, p.Register, p.Width, formatData(p.Data))
}

func (p BasicAccess) generic() (genericPayload, int, error) {
	if !p.Kind.IsBasic() {
		return genericPayload{}, 0, fmt.Errorf("%w: %s is not a basic access shape", ErrShapeMismatch, p.Kind)
	}
	return registerGeneric(p.Width, p.Data, p.Address, p.Register)
}

// PagedMemoryAccess reads or writes a paged memory bank. Kind selects the
// bank: ShapeDDR, ShapeQDR or ShapeQSPI.
type PagedMemoryAccess struct {
	Kind    Shape
	Address uint32
	Page    uint32
	Offset  uint32
	Width   DataWidth
	Data    []byte
}

func (p PagedMemoryAccess) Shape() Shape { return p.Kind }

func (p PagedMemoryAccess) Equal(other Payload) bool {
	o, ok := other.(PagedMemoryAccess)
	return ok && p.Kind == o.Kind && p.Address == o.Address && p.Page == o.Page &&
		p.Offset == o.Offset && p.Width == o.Width && bytes.Equal(p.Data, o.Data)
}

func (p PagedMemoryAccess) String() string {
	return fmt.Sprintf("%s{address=%#x page=%d offset=%#x width=%s data=%s}",
		p.Kind, p.Address, p.Page, p.Offset, p.Width, formatData(p.Data))
}

func (p PagedMemoryAccess) generic() (genericPayload, int, error) {
	if !p.Kind.IsPagedMemory() {
		return genericPayload{}, 0, fmt.Errorf("%w: %s is not a paged memory shape", ErrShapeMismatch, p.Kind)
	}
	return registerGeneric(p.Width, p.Data, p.Address, p.Page, p.Offset)
}

// BusConfig configures a bus-attached peripheral. The typed parameters are
// optional; nil means absent.
type BusConfig struct {
	Bus      uint32
	Slave    uint32
	Register uint32
	Width    DataWidth

	UintParam   *uint32
	IntParam    *int32
	FloatParam  *float64
	StringParam *string
	ByteParam   *uint8
}

// WithUint returns a copy of c carrying the unsigned parameter v.
func (c BusConfig) WithUint(v uint32) BusConfig {
	c.UintParam = &v
	return c
}

// WithInt returns a copy of c carrying the signed parameter v.
func (c BusConfig) WithInt(v int32) BusConfig {
	c.IntParam = &v
	return c
}

// WithFloat returns a copy of c carrying the float parameter v.
func (c BusConfig) WithFloat(v float64) BusConfig {
	c.FloatParam = &v
	return c
}

// WithString returns a copy of c carrying the string parameter v.
func (c BusConfig) WithString(v string) BusConfig {
	c.StringParam = &v
	return c
}

// WithByte returns a copy of c carrying the byte parameter v.
func (c BusConfig) WithByte(v uint8) BusConfig {
	c.ByteParam = &v
	return c
}

func (c BusConfig) Shape() Shape { return ShapeBusConfig }

func (c BusConfig) Equal(other Payload) bool {
	o, ok := other.(BusConfig)
	return ok && c.Bus == o.Bus && c.Slave == o.Slave && c.Register == o.Register &&
		c.Width == o.Width &&
		optionalEqual(c.UintParam, o.UintParam) &&
		optionalEqual(c.IntParam, o.IntParam) &&
		optionalEqual(c.FloatParam, o.FloatParam) &&
		optionalEqual(c.StringParam, o.StringParam) &&
		optionalEqual(c.ByteParam, o.ByteParam)
}

func (c BusConfig) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s{bus=%#x slave=%#x register=%#x width=%s",
		c.Shape(), c.Bus, c.Slave, c.Register, c.Width)
	if c.UintParam != nil {
		fmt.Fprintf(&sb, " uint=%d", *c.UintParam)
	}
	if c.IntParam != nil {
		fmt.Fprintf(&sb, " int=%d", *c.IntParam)
	}
	if c.FloatParam != nil {
		fmt.Fprintf(&sb, " float=%g", *c.FloatParam)
	}
	if c.StringParam != nil {
		fmt.Fprintf(&sb, " string=%q", *c.StringParam)
	}
	if c.ByteParam != nil {
		fmt.Fprintf(&sb, " byte=%#02x", *c.ByteParam)
	}
	sb.WriteByte('}')
	return sb.String()
}

func (c BusConfig) generic() (genericPayload, int, error) {
	if !c.Width.IsSupported() {
		return genericPayload{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedWidth, c.Width)
	}
	t := NewTree()
	t.entries[KeyBus] = UintValue(uint64(c.Bus))
	t.entries[KeySlave] = UintValue(uint64(c.Slave))
	t.entries[KeyRegister] = UintValue(uint64(c.Register))
	t.entries[KeyWidth] = IntValue(int64(c.Width))
	if c.UintParam != nil {
		t.entries[KeyUintParam] = UintValue(uint64(*c.UintParam))
	}
	if c.IntParam != nil {
		t.entries[KeyIntParam] = IntValue(int64(*c.IntParam))
	}
	if c.FloatParam != nil {
		t.entries[KeyFloatParam] = FloatValue(*c.FloatParam)
	}
	if c.StringParam != nil {
		t.entries[KeyStringParam] = StringValue(*c.StringParam)
	}
	if c.ByteParam != nil {
		t.entries[KeyByteParam] = UintValue(uint64(*c.ByteParam))
	}
	return genericPayload{kind: genericTree, tree: t}, 0, nil
}

// ModuleConfig carries module-wide configuration as a named parameter tree.
type ModuleConfig struct {
	Name   string
	Params *Tree
}

func (c ModuleConfig) Shape() Shape { return ShapeModuleConfig }

func (c ModuleConfig) Equal(other Payload) bool {
	o, ok := other.(ModuleConfig)
	return ok && c.Name == o.Name && c.Params.Equal(o.Params)
}

func (c ModuleConfig) String() string {
	return fmt.Sprintf("%s{name=%q params=%s}", c.Shape(), c.Name, c.Params)
}

func (c ModuleConfig) generic() (genericPayload, int, error) {
	t := NewTree()
	t.entries[KeyModuleName] = StringValue(c.Name)
	t.entries[KeyParameters] = Value{kind: KindTree, t: c.Params.Clone()}
	return genericPayload{kind: genericTree, tree: t}, 0, nil
}

// registerGeneric builds the positional scalar list: header fields, width,
// then one scalar per data unit.
func registerGeneric(width DataWidth, data []byte, fields ...uint32) (genericPayload, int, error) {
	units, err := UnpackUnits(data, width)
	if err != nil {
		return genericPayload{}, 0, err
	}
	scalars := make([]uint32, 0, len(fields)+1+len(units))
	scalars = append(scalars, fields...)
	scalars = append(scalars, uint32(width))
	scalars = append(scalars, units...)
	return genericPayload{kind: genericScalars, scalars: scalars}, len(units), nil
}

// rebuild reconstructs a typed payload of the given shape from its generic
// form. dataLength is the number of data units to read.
func rebuild(shape Shape, g genericPayload, dataLength int32) (Payload, error) {
	switch shape {
	case ShapeBusAccess, ShapeXADC, ShapeGPIO, ShapeRawRegister, ShapeDDR, ShapeQDR, ShapeQSPI:
		return rebuildRegister(shape, g, dataLength)
	case ShapeBusConfig:
		return rebuildBusConfig(g)
	case ShapeModuleConfig:
		return rebuildModuleConfig(g)
	default:
		return nil, fmt.Errorf("%w: unknown shape %d", ErrShapeMismatch, shape)
	}
}

func rebuildRegister(shape Shape, g genericPayload, dataLength int32) (Payload, error) {
	if g.kind != genericScalars {
		return nil, fmt.Errorf("%w: %s needs a scalar list payload", ErrShapeMismatch, shape)
	}
	n := shape.fieldCount()
	if dataLength < 0 || len(g.scalars) < n+int(dataLength) {
		return nil, fmt.Errorf("%w: %s needs %d scalars, payload has %d",
			ErrShapeMismatch, shape, n+int(dataLength), len(g.scalars))
	}
	width := DataWidth(-1)
	if w := g.scalars[n-1]; w <= math.MaxInt8 {
		width = DataWidth(w)
	}
	data, err := PackUnits(g.scalars[n:n+int(dataLength)], width)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShapeMismatch, shape, err)
	}
	s := g.scalars
	switch {
	case shape == ShapeBusAccess:
		return BusAccess{Bus: s[0], Slave: s[1], Register: s[2], Width: width, Data: data}, nil
	case shape.IsBasic():
		return BasicAccess{Kind: shape, Address: s[0], Register: s[1], Width: width, Data: data}, nil
	default:
		return PagedMemoryAccess{Kind: shape, Address: s[0], Page: s[1], Offset: s[2], Width: width, Data: data}, nil
	}
}

func rebuildBusConfig(g genericPayload) (Payload, error) {
	if g.kind != genericTree {
		return nil, fmt.Errorf("%w: %s needs a tree payload", ErrShapeMismatch, ShapeBusConfig)
	}
	t := g.tree
	var c BusConfig
	var err error
	if c.Bus, err = treeUint32(t, KeyBus); err != nil {
		return nil, err
	}
	if c.Slave, err = treeUint32(t, KeySlave); err != nil {
		return nil, err
	}
	if c.Register, err = treeUint32(t, KeyRegister); err != nil {
		return nil, err
	}
	w, err := t.GetInt(KeyWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	c.Width = DataWidth(w)
	if !c.Width.IsSupported() || int64(c.Width) != w {
		return nil, fmt.Errorf("%w: %s width %d", ErrShapeMismatch, ShapeBusConfig, w)
	}

	if v, ok := t.entries[KeyUintParam]; ok {
		n, err := valueInRange(v, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		c = c.WithUint(uint32(n))
	}
	if v, ok := t.entries[KeyIntParam]; ok {
		n, err := v.AsInt()
		if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s int parameter %s", ErrShapeMismatch, ShapeBusConfig, v)
		}
		c = c.WithInt(int32(n))
	}
	if v, ok := t.entries[KeyFloatParam]; ok {
		f, err := v.AsFloat()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
		c = c.WithFloat(f)
	}
	if v, ok := t.entries[KeyStringParam]; ok {
		s, err := v.AsString()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
		c = c.WithString(s)
	}
	if v, ok := t.entries[KeyByteParam]; ok {
		n, err := valueInRange(v, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		c = c.WithByte(uint8(n))
	}
	return c, nil
}

func rebuildModuleConfig(g genericPayload) (Payload, error) {
	if g.kind != genericTree {
		return nil, fmt.Errorf("%w: %s needs a tree payload", ErrShapeMismatch, ShapeModuleConfig)
	}
	nameVal, ok := g.tree.entries[KeyModuleName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q key", ErrShapeMismatch, ShapeModuleConfig, KeyModuleName)
	}
	name, err := nameVal.AsString()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	paramsVal, ok := g.tree.entries[KeyParameters]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q key", ErrShapeMismatch, ShapeModuleConfig, KeyParameters)
	}
	params, err := paramsVal.AsTree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return ModuleConfig{Name: name, Params: params}, nil
}

func treeUint32(t *Tree, key string) (uint32, error) {
	v, ok := t.entries[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %q key", ErrShapeMismatch, ShapeBusConfig, key)
	}
	n, err := valueInRange(v, 0, math.MaxUint32)
	return uint32(n), err
}

func valueInRange(v Value, lo, hi uint64) (uint64, error) {
	n, err := v.AsUint()
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: value %s out of range [%d, %d]", ErrShapeMismatch, v, lo, hi)
	}
	return n, nil
}

func optionalEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatData(data []byte) string {
	if len(data) == 0 {
		return "[]"
	}
	return fmt.Sprintf("[% x]", data)
}
