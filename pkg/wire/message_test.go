package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageDefaults(t *testing.T) {
	m := NewMessage()

	assert.Equal(t, CommandUnsupported, m.Command())
	assert.Equal(t, AccessUnsupported, m.Access())
	assert.Equal(t, AckUndefined, m.Ack())
	assert.Equal(t, uint16(0), m.RequestID())
	assert.Equal(t, DefaultTimeout, m.Timeout())
	assert.Equal(t, DefaultRetries, m.Retries())
	assert.False(t, m.HasPayload())
	assert.Equal(t, int32(0), m.DataLength())
	assert.Equal(t, int32(0), m.ReadLength())
	assert.Equal(t, ShapeNone, m.PayloadShape())
}

func TestSetRequestIDAndRetries(t *testing.T) {
	m := NewMessage()

	require.NoError(t, m.SetRequestID(65535))
	assert.Equal(t, uint16(65535), m.RequestID())
	assert.ErrorIs(t, m.SetRequestID(-1), ErrInvalidField)
	assert.ErrorIs(t, m.SetRequestID(65536), ErrInvalidField)

	require.NoError(t, m.SetRetries(3))
	assert.Equal(t, int16(3), m.Retries())
	assert.ErrorIs(t, m.SetRetries(-1), ErrInvalidField)
	assert.Equal(t, int16(3), m.Retries())
}

func TestAttachAccessValidation(t *testing.T) {
	gpio := BasicAccess{Kind: ShapeGPIO, Address: 0x41200000, Register: 0x8, Width: WidthLong, Data: []byte{1, 0, 0, 0}}

	m := NewRequest(CommandWrite, AccessI2C, 1)
	err := m.SetPayload(gpio)
	require.ErrorIs(t, err, ErrAccessMismatch)
	assert.Contains(t, err.Error(), "I2C")
	assert.Contains(t, err.Error(), "GPIO")
	assert.False(t, m.HasPayload())

	m = NewRequest(CommandWrite, AccessGPIO, 1)
	require.NoError(t, m.SetPayload(gpio))
	assert.Equal(t, ShapeGPIO, m.PayloadShape())
	assert.Equal(t, int32(1), m.DataLength())
}

func TestAttachReadLength(t *testing.T) {
	p := BusAccess{Bus: 1, Slave: 0x50, Register: 0x10, Width: WidthByte}

	m := NewRequest(CommandRead, AccessI2C, 7)
	assert.ErrorIs(t, m.SetPayload(p), ErrMissingReadLength)
	assert.ErrorIs(t, m.SetPayload(p, WithReadLength(0)), ErrMissingReadLength)

	require.NoError(t, m.SetPayload(p, WithReadLength(6)))
	assert.Equal(t, int32(6), m.ReadLength())
	assert.Equal(t, int32(0), m.DataLength())

	// A carried read length does not stand in for an explicit one.
	p.Data = []byte{0xAA, 0xBB}
	assert.ErrorIs(t, m.SetPayload(p), ErrMissingReadLength)
	assert.Equal(t, int32(6), m.ReadLength())
	assert.Equal(t, int32(0), m.DataLength(), "failed attach keeps the previous payload")

	// Access is checked before the read length.
	gpio := BasicAccess{Kind: ShapeGPIO, Width: WidthByte}
	assert.ErrorIs(t, m.SetPayload(gpio), ErrAccessMismatch)
}

func TestAttachWriteData(t *testing.T) {
	p := BusAccess{Bus: 1, Slave: 0x50, Register: 0x10, Width: WidthByte}

	m := NewRequest(CommandWrite, AccessI2C, 8)
	assert.ErrorIs(t, m.SetPayload(p), ErrMissingWriteData)

	p.Data = []byte{0x05}
	require.NoError(t, m.SetPayload(p))
	assert.Equal(t, int32(1), m.DataLength())
}

func TestAttachDataLengthCountsUnits(t *testing.T) {
	p := PagedMemoryAccess{
		Kind:    ShapeDDR,
		Address: 0x80000000,
		Page:    2,
		Offset:  0x40,
		Width:   WidthWord,
		Data:    []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
	}

	m := NewRequest(CommandWrite, AccessDDR, 9)
	require.NoError(t, m.SetPayload(p))
	assert.Equal(t, int32(3), m.DataLength())

	p.Data = p.Data[:5]
	assert.ErrorIs(t, m.SetPayload(p), ErrInvalidField)
}

func TestAttachConfigRequiresConfigure(t *testing.T) {
	cfg := BusConfig{Bus: 1, Slave: 0x50, Register: 0x02, Width: WidthByte}.WithUint(3)

	m := NewRequest(CommandWrite, AccessI2C, 1)
	assert.ErrorIs(t, m.SetPayload(cfg), ErrShapeMismatch)

	m = NewRequest(CommandConfigure, AccessI2C, 1)
	require.NoError(t, m.SetPayload(cfg))
	assert.Equal(t, int32(0), m.DataLength())

	mod := ModuleConfig{Name: "adc", Params: NewTree()}
	assert.ErrorIs(t, m.SetPayload(mod), ErrAccessMismatch)

	m = NewRequest(CommandConfigure, AccessUnsupported, 1)
	require.NoError(t, m.SetPayload(mod))
}

func TestAttachUnsupportedWidth(t *testing.T) {
	m := NewRequest(CommandWrite, AccessXADC, 1)
	p := BasicAccess{Kind: ShapeXADC, Width: WidthUnsupported, Data: []byte{1}}
	assert.ErrorIs(t, m.SetPayload(p), ErrUnsupportedWidth)

	c := NewRequest(CommandConfigure, AccessI2C, 1)
	assert.ErrorIs(t, c.SetPayload(BusConfig{Width: DataWidth(9)}), ErrUnsupportedWidth)
}

func TestAttachRejectsBadKind(t *testing.T) {
	m := NewRequest(CommandWrite, AccessGPIO, 1)
	err := m.SetPayload(BasicAccess{Kind: ShapeDDR, Width: WidthByte, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrAccessMismatch)

	assert.ErrorIs(t, m.SetPayload(nil), ErrInvalidField)
}

func TestPayloadRetrieval(t *testing.T) {
	p := BasicAccess{Kind: ShapeRawRegister, Address: 0x43C00000, Register: 0x10, Width: WidthLong, Data: []byte{0xEF, 0xBE, 0xAD, 0xDE}}

	m := NewRequest(CommandWrite, AccessRawRegister, 3)
	_, err := m.BasicAccess(ShapeRawRegister)
	assert.ErrorIs(t, err, ErrMissingPayload)

	require.NoError(t, m.SetPayload(p))

	got, err := m.BasicAccess(ShapeRawRegister)
	require.NoError(t, err)
	assert.True(t, got.Equal(p))

	_, err = m.BasicAccess(ShapeGPIO)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = m.BusAccess()
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = m.BusConfig()
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = m.PagedMemoryAccess(ShapeXADC)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRetrievedPayloadIsACopy(t *testing.T) {
	data := []byte{0x11, 0x22}
	m := NewRequest(CommandWrite, AccessI2C, 1)
	require.NoError(t, m.SetPayload(BusAccess{Bus: 1, Slave: 2, Register: 3, Width: WidthByte, Data: data}))

	data[0] = 0xFF
	got, err := m.BusAccess()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22}, got.Data)

	got.Data[1] = 0xFF
	again, err := m.BusAccess()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22}, again.Data)
}

func TestMessageCopyIsIndependent(t *testing.T) {
	params := NewTree()
	require.NoError(t, params.SetParam("rate", IntValue(100)))

	m := NewRequest(CommandConfigure, AccessUnsupported, 1)
	require.NoError(t, m.SetPayload(ModuleConfig{Name: "sampler", Params: params}))
	require.NoError(t, params.SetParam("extra", IntValue(1)))

	c := m
	c.SetAck(AckAck)
	c.ClearPayload()

	assert.Equal(t, AckUndefined, m.Ack())
	got, err := m.ModuleConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, got.Params.Len())
	assert.False(t, c.HasPayload())
}

func TestHeaderEqual(t *testing.T) {
	a := NewRequest(CommandRead, AccessGPIO, 4)
	b := a
	assert.True(t, a.HeaderEqual(b))

	require.NoError(t, b.SetPayload(BasicAccess{Kind: ShapeGPIO, Width: WidthByte}, WithReadLength(1)))
	assert.False(t, a.HeaderEqual(b), "read length is part of the header")

	c := a
	c.SetTimeout(250)
	assert.False(t, a.HeaderEqual(c))
}

func TestReply(t *testing.T) {
	req := NewRequest(CommandRead, AccessI2C, 12)
	require.NoError(t, req.SetRetries(2))
	require.NoError(t, req.SetPayload(BusAccess{Bus: 1, Width: WidthByte}, WithReadLength(2)))

	resp := req.Reply(AckAck)
	assert.Equal(t, CommandRead, resp.Command())
	assert.Equal(t, AccessI2C, resp.Access())
	assert.Equal(t, AckAck, resp.Ack())
	assert.Equal(t, uint16(12), resp.RequestID())
	assert.Equal(t, int16(2), resp.Retries())
	assert.Equal(t, int32(2), resp.ReadLength())
	assert.False(t, resp.HasPayload())

	withData, err := req.ReplyWith(AckAck, BusAccess{Bus: 1, Width: WidthByte, Data: []byte{0x10, 0x20}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), withData.DataLength())
	assert.Equal(t, int32(2), withData.ReadLength())
	assert.Equal(t, uint16(12), withData.RequestID())
	assert.Equal(t, int32(0), req.DataLength(), "request untouched")

	_, err = req.ReplyWith(AckAck, BasicAccess{Kind: ShapeGPIO, Width: WidthByte, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrAccessMismatch)
	_, err = req.ReplyWith(AckAck, nil)
	assert.ErrorIs(t, err, ErrInvalidField)

	// A read request without a read length cannot be answered with data.
	bare := NewRequest(CommandRead, AccessI2C, 13)
	_, err = bare.ReplyWith(AckAck, BusAccess{Bus: 1, Width: WidthByte, Data: []byte{0x10}})
	assert.ErrorIs(t, err, ErrMissingReadLength)
}

func TestMessageString(t *testing.T) {
	m := NewRequest(CommandWrite, AccessI2C, 5)
	require.NoError(t, m.SetPayload(BusAccess{Bus: 1, Slave: 0x50, Register: 0x10, Width: WidthByte, Data: []byte{0x05}}))

	s := m.String()
	assert.Contains(t, s, "WRITE I2C")
	assert.Contains(t, s, "i2c_access")
	assert.Contains(t, s, "[05]")

	assert.Contains(t, NewMessage().String(), VoidPayload)
}
