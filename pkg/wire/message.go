package wire

import (
	"fmt"
	"math"
	"time"
)

// TimestampLayout is the canonical string form of message timestamps (UTC).
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Default header values of a new message.
const (
	DefaultTimeout int16 = -1
	DefaultRetries int16 = -1
)

// Message is one HWCP control message: a header plus at most one payload.
//
// Messages are values. A copy never shares mutable state with the original:
// the stored payload is immutable and typed payloads are copied in and out.
// Use NewMessage to obtain the default header; the zero value is not a valid
// default message.
type Message struct {
	command   CommandType
	access    AccessTarget
	ack       AckState
	requestID uint16
	timeout   int16
	retries   int16
	timestamp time.Time

	payload    genericPayload
	dataLength int32
	readLength int32
}

// NewMessage returns a message with the default header and no payload,
// timestamped now.
func NewMessage() Message {
	return Message{
		command:   CommandUnsupported,
		access:    AccessUnsupported,
		ack:       AckUndefined,
		timeout:   DefaultTimeout,
		retries:   DefaultRetries,
		timestamp: now(),
	}
}

// NewRequest returns a message for the given command, access target and
// request id.
func NewRequest(cmd CommandType, access AccessTarget, requestID uint16) Message {
	m := NewMessage()
	m.command = cmd
	m.access = access
	m.requestID = requestID
	return m
}

// now truncates to the precision of TimestampLayout so that the timestamp
// survives a round trip through its string form.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (m Message) Command() CommandType { return m.command }
func (m Message) Access() AccessTarget { return m.access }
func (m Message) Ack() AckState        { return m.ack }
func (m Message) RequestID() uint16    { return m.requestID }
func (m Message) Timeout() int16       { return m.timeout }
func (m Message) Retries() int16       { return m.retries }

// Timestamp returns the moment the message was created.
func (m Message) Timestamp() time.Time { return m.timestamp }

// TimestampString returns the timestamp in TimestampLayout.
func (m Message) TimestampString() string {
	return m.timestamp.UTC().Format(TimestampLayout)
}

// DataLength returns the number of width-units carried in the payload.
func (m Message) DataLength() int32 { return m.dataLength }

// ReadLength returns the number of width-units requested by a read.
func (m Message) ReadLength() int32 { return m.readLength }

// HasPayload reports whether a payload is attached.
func (m Message) HasPayload() bool { return m.payload.kind != genericAbsent }

func (m *Message) SetCommand(c CommandType) { m.command = c }
func (m *Message) SetAccess(a AccessTarget) { m.access = a }
func (m *Message) SetAck(a AckState)        { m.ack = a }
func (m *Message) SetTimeout(ms int16)      { m.timeout = ms }

// SetRequestID sets the request id. It must fit in 16 unsigned bits.
func (m *Message) SetRequestID(id int) error {
	if id < 0 || id > math.MaxUint16 {
		return fmt.Errorf("%w: request id %d", ErrInvalidField, id)
	}
	m.requestID = uint16(id)
	return nil
}

// SetRetries sets the retry count. It must be non-negative and fit in 16
// signed bits.
func (m *Message) SetRetries(n int) error {
	if n < 0 || n > math.MaxInt16 {
		return fmt.Errorf("%w: retries %d", ErrInvalidField, n)
	}
	m.retries = int16(n)
	return nil
}

// AttachOption adjusts SetPayload.
type AttachOption func(*attachOptions)

type attachOptions struct {
	readLength    int
	hasReadLength bool
}

// WithReadLength supplies the number of width-units a read requests.
func WithReadLength(n int) AttachOption {
	return func(o *attachOptions) {
		o.readLength = n
		o.hasReadLength = true
	}
}

// SetPayload validates p against the header and attaches it, replacing any
// previous payload. DataLength becomes the number of units in p's data.
//
// Read commands need WithReadLength with at least one unit. Write commands
// need non-empty data.
func (m *Message) SetPayload(p Payload, opts ...AttachOption) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidField)
	}
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}

	// A read length already carried by m does not count for reads.
	readLength := m.readLength
	if m.command == CommandRead {
		readLength = 0
		if o.hasReadLength && o.readLength >= 1 && o.readLength <= math.MaxInt32 {
			readLength = int32(o.readLength)
		}
	}
	return m.attach(p, readLength)
}

// ReplyWith returns Reply(ack) carrying p. A read reply keeps the read
// length of the request it answers.
func (m Message) ReplyWith(ack AckState, p Payload) (Message, error) {
	if p == nil {
		return Message{}, fmt.Errorf("%w: nil payload", ErrInvalidField)
	}
	r := m.Reply(ack)
	if err := r.attach(p, r.readLength); err != nil {
		return Message{}, err
	}
	return r, nil
}

func (m *Message) attach(p Payload, readLength int32) error {
	shape := p.Shape()
	if !shape.IsValid() {
		return fmt.Errorf("%w: unknown payload shape %d", ErrShapeMismatch, shape)
	}
	if shape.Access() != m.access {
		return fmt.Errorf("%w: message access is %s, %s payload requires %s",
			ErrAccessMismatch, m.access, shape, shape.Access())
	}
	if shape.IsConfig() && m.command != CommandConfigure {
		return fmt.Errorf("%w: %s payload requires command %s, message has %s",
			ErrShapeMismatch, shape, CommandConfigure, m.command)
	}

	g, units, err := p.generic()
	if err != nil {
		return err
	}

	switch m.command {
	case CommandRead:
		if readLength < 1 {
			return fmt.Errorf("%w: read command needs a read length of at least 1", ErrMissingReadLength)
		}
	case CommandWrite:
		if units == 0 {
			return fmt.Errorf("%w: write command needs at least one data unit", ErrMissingWriteData)
		}
	}

	m.payload = g
	m.dataLength = int32(units)
	m.readLength = readLength
	return nil
}

// ClearPayload detaches the payload. The read length is kept.
func (m *Message) ClearPayload() {
	m.payload = genericPayload{}
	m.dataLength = 0
}

// PayloadShape returns the shape the attached payload is retrieved as under
// the current header, or ShapeNone when there is none.
func (m Message) PayloadShape() Shape {
	if !m.HasPayload() {
		return ShapeNone
	}
	return ShapeFor(m.command, m.access)
}

// PayloadAs rebuilds the attached payload as the given shape.
//
// It fails with ErrMissingPayload when nothing is attached and with
// ErrShapeMismatch when the shape does not fit the message's command and
// access target.
func (m Message) PayloadAs(shape Shape) (Payload, error) {
	if !m.HasPayload() {
		return nil, ErrMissingPayload
	}
	if err := m.checkShape(shape); err != nil {
		return nil, err
	}
	return rebuild(shape, m.payload, m.dataLength)
}

func (m Message) checkShape(shape Shape) error {
	switch {
	case shape.IsRegisterAccess():
		switch m.command {
		case CommandRead, CommandWrite, CommandNotify:
		default:
			return fmt.Errorf("%w: %s payload needs a READ, WRITE or NOTIFY command, message has %s",
				ErrShapeMismatch, shape, m.command)
		}
	case shape.IsConfig():
		if m.command != CommandConfigure {
			return fmt.Errorf("%w: %s payload needs command %s, message has %s",
				ErrShapeMismatch, shape, CommandConfigure, m.command)
		}
	default:
		return fmt.Errorf("%w: unknown payload shape %d", ErrShapeMismatch, shape)
	}
	if shape.Access() != m.access {
		return fmt.Errorf("%w: %s payload needs access %s, message has %s",
			ErrShapeMismatch, shape, shape.Access(), m.access)
	}
	return nil
}

// BusAccess returns the attached payload as a BusAccess.
func (m Message) BusAccess() (BusAccess, error) {
	p, err := m.PayloadAs(ShapeBusAccess)
	if err != nil {
		return BusAccess{}, err
	}
	return p.(BusAccess), nil
}

// BasicAccess returns the attached payload as a BasicAccess of the given
// shape (ShapeXADC, ShapeGPIO or ShapeRawRegister).
func (m Message) BasicAccess(shape Shape) (BasicAccess, error) {
	if !shape.IsBasic() {
		return BasicAccess{}, fmt.Errorf("%w: %s is not a basic access shape", ErrShapeMismatch, shape)
	}
	p, err := m.PayloadAs(shape)
	if err != nil {
		return BasicAccess{}, err
	}
	return p.(BasicAccess), nil
}

// PagedMemoryAccess returns the attached payload as a PagedMemoryAccess of
// the given shape (ShapeDDR, ShapeQDR or ShapeQSPI).
func (m Message) PagedMemoryAccess(shape Shape) (PagedMemoryAccess, error) {
	if !shape.IsPagedMemory() {
		return PagedMemoryAccess{}, fmt.Errorf("%w: %s is not a paged memory shape", ErrShapeMismatch, shape)
	}
	p, err := m.PayloadAs(shape)
	if err != nil {
		return PagedMemoryAccess{}, err
	}
	return p.(PagedMemoryAccess), nil
}

// BusConfig returns the attached payload as a BusConfig.
func (m Message) BusConfig() (BusConfig, error) {
	p, err := m.PayloadAs(ShapeBusConfig)
	if err != nil {
		return BusConfig{}, err
	}
	return p.(BusConfig), nil
}

// ModuleConfig returns the attached payload as a ModuleConfig.
func (m Message) ModuleConfig() (ModuleConfig, error) {
	p, err := m.PayloadAs(ShapeModuleConfig)
	if err != nil {
		return ModuleConfig{}, err
	}
	return p.(ModuleConfig), nil
}

// HeaderEqual compares every header field, including the data and read
// lengths, but not the payload content.
func (m Message) HeaderEqual(o Message) bool {
	return m.command == o.command &&
		m.access == o.access &&
		m.ack == o.ack &&
		m.requestID == o.requestID &&
		m.timeout == o.timeout &&
		m.retries == o.retries &&
		m.TimestampString() == o.TimestampString() &&
		m.dataLength == o.dataLength &&
		m.readLength == o.readLength
}

// Reply returns a payload-less message answering m: command, access, request
// id, timeout, retries and read length are copied, ack is set and the
// timestamp is fresh.
func (m Message) Reply(ack AckState) Message {
	return Message{
		command:    m.command,
		access:     m.access,
		ack:        ack,
		requestID:  m.requestID,
		timeout:    m.timeout,
		retries:    m.retries,
		timestamp:  now(),
		readLength: m.readLength,
	}
}

// String renders the header and payload for display.
func (m Message) String() string {
	payload := VoidPayload
	if shape := m.PayloadShape(); shape != ShapeNone {
		if p, err := m.PayloadAs(shape); err == nil {
			payload = p.String()
		} else {
			payload = "<" + err.Error() + ">"
		}
	} else if m.HasPayload() {
		payload = "<unbound payload>"
	}
	return fmt.Sprintf("%s %s ack=%s id=%d timeout=%d retries=%d data=%d read=%d at %s payload=%s",
		m.command, m.access, m.ack, m.requestID, m.timeout, m.retries,
		m.dataLength, m.readLength, m.TimestampString(), payload)
}
