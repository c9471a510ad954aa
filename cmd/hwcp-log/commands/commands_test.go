package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

var baseTime = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func durationPtr(d time.Duration) *time.Duration { return &d }

// session is a short capture of one client reading GPIO and being refused
// a plugin request.
func session() []log.Event {
	return []log.Event{
		{
			Timestamp: baseTime, ConnectionID: "c0ffee00-1111", Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "OPEN", Reason: "accepted"},
		},
		{
			Timestamp: baseTime.Add(time.Millisecond), ConnectionID: "c0ffee00-1111", Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, Module: "zcu102",
			Message: &log.MessageEvent{
				Type: log.MessageTypeRequest, RequestID: 7,
				Command: wire.CommandRead, Access: wire.AccessGPIO, ReadLength: 2,
			},
		},
		{
			Timestamp: baseTime.Add(2 * time.Millisecond), ConnectionID: "c0ffee00-1111", Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, Module: "zcu102",
			Message: &log.MessageEvent{
				Type: log.MessageTypeResponse, RequestID: 7,
				Command: wire.CommandRead, Access: wire.AccessGPIO, Ack: wire.AckAck,
				ReadLength: 2, ProcessingTime: durationPtr(250 * time.Microsecond),
			},
		},
		{
			Timestamp: baseTime.Add(3 * time.Millisecond), ConnectionID: "c0ffee00-1111", Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, Module: "zcu102",
			Message: &log.MessageEvent{
				Type: log.MessageTypeResponse, RequestID: 8,
				Command: wire.CommandPlugin, Access: wire.AccessGPIO, Ack: wire.AckNack,
				ProcessingTime: durationPtr(750 * time.Microsecond),
			},
		},
		{
			Timestamp: baseTime.Add(4 * time.Millisecond), ConnectionID: "c0ffee00-1111", Direction: log.DirectionIn,
			Layer: log.LayerHardware, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerHardware, Message: "unsupported command", Context: "handle request"},
		},
	}
}
