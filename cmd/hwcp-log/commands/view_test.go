package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

func TestFormatFrameEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Date(2026, 3, 4, 9, 30, 1, 123456000, time.UTC),
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        &log.FrameEvent{Size: 128, Data: []byte{0xa1, 0x01}, Truncated: true},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-03-04T09:30:01.123456Z",
		"[conn:abc12345]",
		"OUT",
		"TRANSPORT Frame",
		"Size: 128 bytes",
		"Data: a101 (truncated)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatMessageEvent(t *testing.T) {
	req := log.Event{
		Timestamp: baseTime,
		Layer:     log.LayerWire,
		Message: &log.MessageEvent{
			Type: log.MessageTypeRequest, RequestID: 42,
			Command: wire.CommandWrite, Access: wire.AccessDDR,
			DataLength: 2, Shape: "Paged", Payload: "page=3 offset=0x10",
		},
	}
	var buf bytes.Buffer
	formatEvent(&buf, req)
	output := buf.String()

	for _, want := range []string{"REQUEST", "RequestID: 42", "WRITE DDR", "Units: data 2, read 0", "Payload: Paged page=3 offset=0x10"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "->") {
		t.Errorf("request should not render an ack: %s", output)
	}

	resp := log.Event{
		Timestamp: baseTime,
		Layer:     log.LayerWire,
		Message: &log.MessageEvent{
			Type: log.MessageTypeResponse, RequestID: 42,
			Command: wire.CommandWrite, Access: wire.AccessDDR, Ack: wire.AckNack,
			ProcessingTime: durationPtr(1500 * time.Microsecond),
		},
	}
	buf.Reset()
	formatEvent(&buf, resp)
	output = buf.String()
	if !strings.Contains(output, "WRITE DDR -> NACK") {
		t.Errorf("expected ack in output, got: %s", output)
	}
	if !strings.Contains(output, "Duration: 1.500ms") {
		t.Errorf("expected duration in output, got: %s", output)
	}
}

func TestFormatStateAndError(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp: baseTime,
		StateChange: &log.StateChangeEvent{
			Entity: log.StateEntityConnection, OldState: "OPEN", NewState: "CLOSED", Reason: "peer closed",
		},
	})
	output := buf.String()
	for _, want := range []string{"State", "Entity: CONNECTION", "OPEN -> CLOSED", "Reason: peer closed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	id := uint16(9)
	buf.Reset()
	formatEvent(&buf, log.Event{
		Timestamp: baseTime,
		Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: "short frame", RequestID: &id, Context: "decode request"},
	})
	output = buf.String()
	for _, want := range []string{"Error", "Layer: WIRE", "Message: short frame", "RequestID: 9", "Context: decode request"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestShortenConnID(t *testing.T) {
	if got := shortenConnID("abcdefghij"); got != "abcdefgh" {
		t.Errorf("shortenConnID = %q", got)
	}
	if got := shortenConnID("abc"); got != "abc" {
		t.Errorf("shortenConnID = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Microsecond, "250.000us"},
		{1500 * time.Microsecond, "1.500ms"},
		{2 * time.Second, "2.000s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, session())

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if got := strings.Count(output, "[conn:c0ffee00]"); got != 5 {
		t.Errorf("expected 5 events, got %d: %s", got, output)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunView("/nonexistent/capture.hlog", log.Filter{}, &buf); err == nil {
		t.Error("expected error for missing file")
	}
}
