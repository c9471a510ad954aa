package log

import (
	"testing"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	original := Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		LocalRole:    RoleClient,
		RemoteAddr:   "192.168.1.100:5025",
		Module:       "fmc-adc-01",
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.ConnectionID != original.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, original.ConnectionID)
	}
	if decoded.Direction != original.Direction {
		t.Errorf("Direction: got %v, want %v", decoded.Direction, original.Direction)
	}
	if decoded.Layer != original.Layer {
		t.Errorf("Layer: got %v, want %v", decoded.Layer, original.Layer)
	}
	if decoded.LocalRole != original.LocalRole {
		t.Errorf("LocalRole: got %v, want %v", decoded.LocalRole, original.LocalRole)
	}
	if decoded.RemoteAddr != original.RemoteAddr {
		t.Errorf("RemoteAddr: got %q, want %q", decoded.RemoteAddr, original.RemoteAddr)
	}
	if decoded.Module != original.Module {
		t.Errorf("Module: got %q, want %q", decoded.Module, original.Module)
	}
}

func TestFrameEventCBORRoundTrip(t *testing.T) {
	original := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Size: 256, Data: []byte{0x01, 0x02, 0x03}, Truncated: true},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Frame == nil {
		t.Fatal("Frame is nil")
	}
	if decoded.Frame.Size != 256 || !decoded.Frame.Truncated || len(decoded.Frame.Data) != 3 {
		t.Errorf("Frame: got %+v", decoded.Frame)
	}
	if decoded.Message != nil || decoded.Error != nil || decoded.StateChange != nil {
		t.Error("unexpected payload fields set")
	}
}

func TestMessageEventCBORRoundTrip(t *testing.T) {
	pt := 1500 * time.Microsecond
	original := Event{
		Timestamp: time.Now(),
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Type:           MessageTypeResponse,
			RequestID:      513,
			Command:        wire.CommandRead,
			Access:         wire.AccessUnsupported,
			Ack:            wire.AckNack,
			Shape:          "ddr_access",
			DataLength:     4,
			ReadLength:     4,
			Payload:        "ddr_access{...}",
			ProcessingTime: &pt,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	m := decoded.Message
	if m == nil {
		t.Fatal("Message is nil")
	}
	if m.Type != MessageTypeResponse || m.RequestID != 513 {
		t.Errorf("Type/RequestID: got %v/%d", m.Type, m.RequestID)
	}
	if m.Access != wire.AccessUnsupported || m.Ack != wire.AckNack {
		t.Errorf("negative enum values not preserved: access %v ack %v", m.Access, m.Ack)
	}
	if m.Shape != "ddr_access" || m.DataLength != 4 || m.ReadLength != 4 {
		t.Errorf("Shape/lengths: got %q %d %d", m.Shape, m.DataLength, m.ReadLength)
	}
	if m.ProcessingTime == nil || *m.ProcessingTime != pt {
		t.Errorf("ProcessingTime: got %v, want %v", m.ProcessingTime, pt)
	}
}

func TestErrorEventCBORRoundTrip(t *testing.T) {
	id := uint16(9)
	original := Event{
		Timestamp: time.Now(),
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:     LayerHardware,
			Message:   "hardware I/O error: no bus 7",
			RequestID: &id,
			Context:   "READ I2C",
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if decoded.Error == nil {
		t.Fatal("Error is nil")
	}
	if decoded.Error.Layer != LayerHardware || decoded.Error.Message != original.Error.Message {
		t.Errorf("Error: got %+v", decoded.Error)
	}
	if decoded.Error.RequestID == nil || *decoded.Error.RequestID != 9 {
		t.Errorf("RequestID: got %v", decoded.Error.RequestID)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for malformed data")
	}
}
