package wire

// Shape identifies one concrete payload variant.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeBusAccess
	ShapeXADC
	ShapeGPIO
	ShapeRawRegister
	ShapeDDR
	ShapeQDR
	ShapeQSPI
	ShapeBusConfig
	ShapeModuleConfig
)

type shapeInfo struct {
	name   string
	access AccessTarget
	// fields is the number of positional header scalars before the data units.
	fields int
}

var shapeTable = map[Shape]shapeInfo{
	ShapeBusAccess:    {name: "i2c_access", access: AccessI2C, fields: 4},
	ShapeXADC:         {name: "xadc_access", access: AccessXADC, fields: 3},
	ShapeGPIO:         {name: "gpio_access", access: AccessGPIO, fields: 3},
	ShapeRawRegister:  {name: "raw_register_access", access: AccessRawRegister, fields: 3},
	ShapeDDR:          {name: "ddr_access", access: AccessDDR, fields: 4},
	ShapeQDR:          {name: "qdr_access", access: AccessQDR, fields: 4},
	ShapeQSPI:         {name: "qspi_access", access: AccessQSPI, fields: 4},
	ShapeBusConfig:    {name: "i2c_config", access: AccessI2C},
	ShapeModuleConfig: {name: "module_config", access: AccessUnsupported},
}

// Name returns the shape's name tag.
func (s Shape) Name() string {
	if info, ok := shapeTable[s]; ok {
		return info.name
	}
	return "none"
}

// String returns the shape's name tag.
func (s Shape) String() string {
	return s.Name()
}

// IsValid reports whether s is one of the catalog shapes.
func (s Shape) IsValid() bool {
	_, ok := shapeTable[s]
	return ok
}

// Access returns the access target a message must declare to carry s.
func (s Shape) Access() AccessTarget {
	if info, ok := shapeTable[s]; ok {
		return info.access
	}
	return AccessUnsupported
}

// IsConfig reports whether s is a configuration shape (BusConfig or ModuleConfig).
func (s Shape) IsConfig() bool {
	return s == ShapeBusConfig || s == ShapeModuleConfig
}

// IsRegisterAccess reports whether s is one of the positional read/write shapes.
func (s Shape) IsRegisterAccess() bool {
	return s.IsValid() && !s.IsConfig()
}

// IsBasic reports whether s uses the BasicAccess layout.
func (s Shape) IsBasic() bool {
	return s == ShapeXADC || s == ShapeGPIO || s == ShapeRawRegister
}

// IsPagedMemory reports whether s uses the PagedMemoryAccess layout.
func (s Shape) IsPagedMemory() bool {
	return s == ShapeDDR || s == ShapeQDR || s == ShapeQSPI
}

func (s Shape) fieldCount() int {
	return shapeTable[s].fields
}

// AccessShape returns the register access shape for an access target, or
// ShapeNone when the target has none.
func AccessShape(a AccessTarget) Shape {
	switch a {
	case AccessI2C:
		return ShapeBusAccess
	case AccessXADC:
		return ShapeXADC
	case AccessGPIO:
		return ShapeGPIO
	case AccessRawRegister:
		return ShapeRawRegister
	case AccessDDR:
		return ShapeDDR
	case AccessQDR:
		return ShapeQDR
	case AccessQSPI:
		return ShapeQSPI
	default:
		return ShapeNone
	}
}

// ShapeFor returns the shape a payload is retrieved as for the given command
// and access target, or ShapeNone when no shape applies.
func ShapeFor(cmd CommandType, access AccessTarget) Shape {
	switch cmd {
	case CommandRead, CommandWrite, CommandNotify:
		return AccessShape(access)
	case CommandConfigure:
		switch access {
		case AccessI2C:
			return ShapeBusConfig
		case AccessUnsupported:
			return ShapeModuleConfig
		}
	}
	return ShapeNone
}
