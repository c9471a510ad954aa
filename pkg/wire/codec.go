package wire

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for HWCP messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for HWCP messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsEmpty,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configuration trees decode into string-keyed maps at every level.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthAllowed,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Wire record keys.
//
//	{
//	  1: header {1: command, 2: access, 3: ack, 4: requestId,
//	             5: timeout, 6: retries, 7: timestamp},
//	  2: payload,     // [uint...] | {string: value} | "VOID_PAYLOAD"
//	  3: dataLength,
//	  4: readLength
//	}
type wireHeader struct {
	Command   int8   `cbor:"1,keyasint"`
	Access    int8   `cbor:"2,keyasint"`
	Ack       int8   `cbor:"3,keyasint"`
	RequestID uint16 `cbor:"4,keyasint"`
	Timeout   int16  `cbor:"5,keyasint"`
	Retries   int16  `cbor:"6,keyasint"`
	Timestamp string `cbor:"7,keyasint"`
}

type wireMessage struct {
	Header     *wireHeader     `cbor:"1,keyasint"`
	Payload    cbor.RawMessage `cbor:"2,keyasint"`
	DataLength int32           `cbor:"3,keyasint"`
	ReadLength int32           `cbor:"4,keyasint"`
}

// CBOR major types used to tell the generic payload forms apart.
const (
	majorText  = 3
	majorArray = 4
	majorMap   = 5
)

// Encoded size bounds of register-access messages. A data unit is one
// array element of at most a 32-bit unsigned integer; everything else in the
// record (header, address fields, width, lengths) stays under
// MaxRecordOverhead.
const (
	MaxEncodedUnit    = 5
	MaxRecordOverhead = 128
)

// MaxUnits returns how many data units a register-access message can carry
// when its encoded record must not exceed size bytes.
func MaxUnits(size int) int {
	if size <= MaxRecordOverhead {
		return 0
	}
	return (size - MaxRecordOverhead) / MaxEncodedUnit
}

// Encode serializes m into its CBOR wire record.
func Encode(m Message) ([]byte, error) {
	payload, err := encodePayload(m.payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	rec := wireMessage{
		Header: &wireHeader{
			Command:   int8(m.command),
			Access:    int8(m.access),
			Ack:       int8(m.ack),
			RequestID: m.requestID,
			Timeout:   m.timeout,
			Retries:   m.retries,
			Timestamp: m.TimestampString(),
		},
		Payload:    payload,
		DataLength: m.dataLength,
		ReadLength: m.readLength,
	}
	return encMode.Marshal(rec)
}

func encodePayload(g genericPayload) ([]byte, error) {
	switch g.kind {
	case genericAbsent:
		return encMode.Marshal(VoidPayload)
	case genericScalars:
		return encMode.Marshal(g.scalars)
	case genericTree:
		return encMode.Marshal(g.tree.native())
	default:
		return nil, fmt.Errorf("unknown payload form %d", g.kind)
	}
}

// Decode parses a CBOR wire record. Malformed or truncated input fails
// with ErrDecode.
func Decode(data []byte) (Message, error) {
	var rec wireMessage
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rec.Header == nil {
		return Message{}, fmt.Errorf("%w: missing header", ErrDecode)
	}
	h := rec.Header

	m := Message{
		command:    CommandType(h.Command),
		access:     AccessTarget(h.Access),
		ack:        AckState(h.Ack),
		requestID:  h.RequestID,
		timeout:    h.Timeout,
		retries:    h.Retries,
		dataLength: rec.DataLength,
		readLength: rec.ReadLength,
	}
	if !m.command.IsValid() {
		return Message{}, fmt.Errorf("%w: unknown command %d", ErrDecode, h.Command)
	}
	if !m.access.IsValid() {
		return Message{}, fmt.Errorf("%w: unknown access target %d", ErrDecode, h.Access)
	}
	if !m.ack.IsValid() {
		return Message{}, fmt.Errorf("%w: unknown ack state %d", ErrDecode, h.Ack)
	}
	if m.retries < DefaultRetries {
		return Message{}, fmt.Errorf("%w: retries %d", ErrDecode, m.retries)
	}
	if m.dataLength < 0 || m.readLength < 0 {
		return Message{}, fmt.Errorf("%w: negative length (data %d, read %d)", ErrDecode, m.dataLength, m.readLength)
	}

	ts, err := time.ParseInLocation(TimestampLayout, h.Timestamp, time.UTC)
	if err != nil {
		return Message{}, fmt.Errorf("%w: timestamp: %v", ErrDecode, err)
	}
	m.timestamp = ts

	g, err := decodePayload(rec.Payload)
	if err != nil {
		return Message{}, err
	}
	switch g.kind {
	case genericAbsent, genericTree:
		if m.dataLength != 0 {
			return Message{}, fmt.Errorf("%w: data length %d without register data", ErrDecode, m.dataLength)
		}
	case genericScalars:
		if int(m.dataLength) > len(g.scalars) {
			return Message{}, fmt.Errorf("%w: data length %d exceeds %d scalars", ErrDecode, m.dataLength, len(g.scalars))
		}
	}
	m.payload = g
	return m, nil
}

func decodePayload(raw cbor.RawMessage) (genericPayload, error) {
	if len(raw) == 0 {
		return genericPayload{}, fmt.Errorf("%w: missing payload", ErrDecode)
	}
	switch raw[0] >> 5 {
	case majorText:
		var s string
		if err := decMode.Unmarshal(raw, &s); err != nil {
			return genericPayload{}, fmt.Errorf("%w: payload: %v", ErrDecode, err)
		}
		if s != VoidPayload {
			return genericPayload{}, fmt.Errorf("%w: unexpected payload text %q", ErrDecode, s)
		}
		return genericPayload{kind: genericAbsent}, nil

	case majorArray:
		var list []uint64
		if err := decMode.Unmarshal(raw, &list); err != nil {
			return genericPayload{}, fmt.Errorf("%w: payload scalars: %v", ErrDecode, err)
		}
		scalars := make([]uint32, len(list))
		for i, v := range list {
			if v > math.MaxUint32 {
				return genericPayload{}, fmt.Errorf("%w: scalar %d out of range: %d", ErrDecode, i, v)
			}
			scalars[i] = uint32(v)
		}
		return genericPayload{kind: genericScalars, scalars: scalars}, nil

	case majorMap:
		var m map[string]any
		if err := decMode.Unmarshal(raw, &m); err != nil {
			return genericPayload{}, fmt.Errorf("%w: payload tree: %v", ErrDecode, err)
		}
		t, err := TreeFromMap(m)
		if err != nil {
			return genericPayload{}, fmt.Errorf("%w: payload tree: %v", ErrDecode, err)
		}
		return genericPayload{kind: genericTree, tree: t}, nil

	default:
		return genericPayload{}, fmt.Errorf("%w: unexpected payload type 0x%02x", ErrDecode, raw[0])
	}
}
