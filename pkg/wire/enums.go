package wire

import (
	"fmt"
	"strings"
)

// CommandType is the intent of a message.
type CommandType int8

const (
	CommandUnsupported CommandType = -1
	CommandRead        CommandType = 0
	CommandWrite       CommandType = 1
	CommandConfigure   CommandType = 2
	CommandNotify      CommandType = 3
	CommandAlert       CommandType = 4
	CommandPlugin      CommandType = 5
)

// AccessTarget is the class of hardware endpoint a message addresses.
type AccessTarget int8

const (
	AccessUnsupported AccessTarget = -1

	// AccessI2C addresses a register of a bus-attached peripheral.
	AccessI2C AccessTarget = 0

	// AccessXADC addresses the analog-to-digital status block.
	AccessXADC AccessTarget = 1

	// AccessGPIO addresses general purpose I/O registers.
	AccessGPIO AccessTarget = 2

	// AccessRawRegister addresses an arbitrary memory-mapped register.
	AccessRawRegister AccessTarget = 3

	// AccessDDR, AccessQDR and AccessQSPI address the paged memory banks.
	AccessDDR  AccessTarget = 4
	AccessQDR  AccessTarget = 5
	AccessQSPI AccessTarget = 6
)

// AckState is carried in reply headers.
type AckState int8

const (
	// AckUndefined marks requests and unsolicited messages.
	AckUndefined AckState = -1
	AckNack      AckState = 0
	AckAck       AckState = 1
)

// DataWidth is the unit size used to pack register values.
type DataWidth int8

const (
	WidthUnsupported DataWidth = -1
	WidthByte        DataWidth = 0 // 1 byte per unit
	WidthWord        DataWidth = 1 // 2 bytes per unit
	WidthLong        DataWidth = 2 // 4 bytes per unit
)

// Name tables. They are filled once during package initialization and only
// read afterwards.
var (
	commandNames = map[CommandType]string{
		CommandUnsupported: "UNSUPPORTED",
		CommandRead:        "READ",
		CommandWrite:       "WRITE",
		CommandConfigure:   "CONFIGURE",
		CommandNotify:      "NOTIFY",
		CommandAlert:       "ALERT",
		CommandPlugin:      "PLUGIN",
	}

	accessNames = map[AccessTarget]string{
		AccessUnsupported: "UNSUPPORTED",
		AccessI2C:         "I2C",
		AccessXADC:        "XADC",
		AccessGPIO:        "GPIO",
		AccessRawRegister: "RAW_REGISTER",
		AccessDDR:         "DDR",
		AccessQDR:         "QDR",
		AccessQSPI:        "QSPI",
	}

	ackNames = map[AckState]string{
		AckUndefined: "UNDEFINED",
		AckNack:      "NACK",
		AckAck:       "ACK",
	}

	widthNames = map[DataWidth]string{
		WidthUnsupported: "UNSUPPORTED",
		WidthByte:        "BYTE",
		WidthWord:        "WORD",
		WidthLong:        "LONG",
	}

	commandByName map[string]CommandType
	accessByName  map[string]AccessTarget
	ackByName     map[string]AckState
	widthByName   map[string]DataWidth
)

func init() {
	commandByName = invert(commandNames)
	accessByName = invert(accessNames)
	ackByName = invert(ackNames)
	widthByName = invert(widthNames)
}

func invert[K comparable](names map[K]string) map[string]K {
	out := make(map[string]K, len(names))
	for k, name := range names {
		out[name] = k
	}
	return out
}

func parseName[K comparable](table map[string]K, kind, s string) (K, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if v, ok := table[key]; ok {
		return v, nil
	}
	var zero K
	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidField, kind, s)
}

// String returns the command name.
func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsValid reports whether c is one of the defined commands.
func (c CommandType) IsValid() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommandType returns the command with the given name (case-insensitive).
func ParseCommandType(s string) (CommandType, error) {
	return parseName(commandByName, "command", s)
}

// String returns the access target name.
func (a AccessTarget) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsValid reports whether a is one of the defined access targets.
func (a AccessTarget) IsValid() bool {
	_, ok := accessNames[a]
	return ok
}

// IsPagedMemory reports whether a addresses one of the paged memory banks.
func (a AccessTarget) IsPagedMemory() bool {
	return a == AccessDDR || a == AccessQDR || a == AccessQSPI
}

// IsBasic reports whether a addresses a basic memory-mapped register block.
func (a AccessTarget) IsBasic() bool {
	return a == AccessXADC || a == AccessGPIO || a == AccessRawRegister
}

// ParseAccessTarget returns the access target with the given name (case-insensitive).
func ParseAccessTarget(s string) (AccessTarget, error) {
	return parseName(accessByName, "access target", s)
}

// String returns the ack state name.
func (a AckState) String() string {
	if name, ok := ackNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsValid reports whether a is one of the defined ack states.
func (a AckState) IsValid() bool {
	_, ok := ackNames[a]
	return ok
}

// ParseAckState returns the ack state with the given name (case-insensitive).
func ParseAckState(s string) (AckState, error) {
	return parseName(ackByName, "ack state", s)
}

// String returns the width name.
func (w DataWidth) String() string {
	if name, ok := widthNames[w]; ok {
		return name
	}
	return "UNKNOWN"
}

// Size returns the number of bytes per unit, or 0 for an unsupported width.
func (w DataWidth) Size() int {
	switch w {
	case WidthByte:
		return 1
	case WidthWord:
		return 2
	case WidthLong:
		return 4
	default:
		return 0
	}
}

// IsSupported reports whether w is Byte, Word or Long.
func (w DataWidth) IsSupported() bool {
	return w.Size() != 0
}

// ParseDataWidth returns the width with the given name (case-insensitive).
// The byte counts "1", "2" and "4" are accepted as well.
func ParseDataWidth(s string) (DataWidth, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return WidthByte, nil
	case "2":
		return WidthWord, nil
	case "4":
		return WidthLong, nil
	}
	return parseName(widthByName, "data width", s)
}
