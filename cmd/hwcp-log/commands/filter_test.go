package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

func TestFilterOptionsBuild(t *testing.T) {
	opts := FilterOptions{
		ConnID:    "abc",
		TimeStart: "2026-03-04T09:00:00Z",
		TimeEnd:   "2026-03-04T10:00:00Z",
		Layer:     "Wire",
		Direction: "out",
		Category:  "MESSAGE",
		Command:   "read",
		Access:    "raw-register",
		RequestID: "0x10",
	}
	f, err := opts.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if f.ConnectionID != "abc" {
		t.Errorf("ConnectionID = %q", f.ConnectionID)
	}
	if f.TimeStart == nil || f.TimeEnd == nil || !f.TimeStart.Before(*f.TimeEnd) {
		t.Errorf("time range not set: %v %v", f.TimeStart, f.TimeEnd)
	}
	if f.Layer == nil || *f.Layer != log.LayerWire {
		t.Errorf("Layer = %v", f.Layer)
	}
	if f.Direction == nil || *f.Direction != log.DirectionOut {
		t.Errorf("Direction = %v", f.Direction)
	}
	if f.Category == nil || *f.Category != log.CategoryMessage {
		t.Errorf("Category = %v", f.Category)
	}
	if f.Command == nil || *f.Command != wire.CommandRead {
		t.Errorf("Command = %v", f.Command)
	}
	if f.Access == nil || *f.Access != wire.AccessRawRegister {
		t.Errorf("Access = %v", f.Access)
	}
	if f.RequestID == nil || *f.RequestID != 16 {
		t.Errorf("RequestID = %v", f.RequestID)
	}
}

func TestFilterOptionsEmpty(t *testing.T) {
	f, err := FilterOptions{}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !f.Matches(log.Event{}) {
		t.Error("empty filter should match everything")
	}
}

func TestFilterOptionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"time-start", FilterOptions{TimeStart: "yesterday"}},
		{"time-end", FilterOptions{TimeEnd: "2026-13-01"}},
		{"layer", FilterOptions{Layer: "service"}},
		{"direction", FilterOptions{Direction: "sideways"}},
		{"category", FilterOptions{Category: "control"}},
		{"command", FilterOptions{Command: "erase"}},
		{"access", FilterOptions{Access: "spi"}},
		{"request-id", FilterOptions{RequestID: "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Build(); err == nil {
				t.Errorf("expected error for %+v", tt.opts)
			}
		})
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, session())
	output := filepath.Join(t.TempDir(), "filtered.hlog")

	f, err := FilterOptions{Direction: "out"}.Build()
	if err != nil {
		t.Fatal(err)
	}

	var report bytes.Buffer
	if err := RunFilter(path, f, output, &report); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(report.String(), "Filtered 2 events") {
		t.Errorf("unexpected report: %s", report.String())
	}

	var buf bytes.Buffer
	if err := RunView(output, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "RESPONSE"); got != 2 {
		t.Errorf("expected 2 responses in filtered file, got %d", got)
	}
	if strings.Contains(buf.String(), "] IN ") {
		t.Errorf("inbound events leaked into filtered file: %s", buf.String())
	}
}

func TestRunFilterByCommand(t *testing.T) {
	path := createTestLogFile(t, session())
	output := filepath.Join(t.TempDir(), "plugin.hlog")

	f, err := FilterOptions{Command: "plugin"}.Build()
	if err != nil {
		t.Fatal(err)
	}
	var report bytes.Buffer
	if err := RunFilter(path, f, output, &report); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(report.String(), "Filtered 1 events") {
		t.Errorf("unexpected report: %s", report.String())
	}
}
