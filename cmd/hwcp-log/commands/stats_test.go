package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

func TestCollect(t *testing.T) {
	path := createTestLogFile(t, session())

	stats, err := Collect(path, log.Filter{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d", stats.TotalEvents)
	}
	if got := stats.EventsByLayer[log.LayerWire]; got != 3 {
		t.Errorf("wire events = %d", got)
	}
	if got := stats.EventsByDirection[log.DirectionOut]; got != 2 {
		t.Errorf("outbound events = %d", got)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d", stats.Errors)
	}
	if !stats.TimeRange.Start.Equal(baseTime) || !stats.TimeRange.End.Equal(baseTime.Add(4*time.Millisecond)) {
		t.Errorf("TimeRange = %v", stats.TimeRange)
	}

	read := stats.Commands[wire.CommandRead]
	if read == nil || read.Acks != 1 || read.Nacks != 0 {
		t.Fatalf("READ stats = %+v", read)
	}
	if read.Mean() != 250*time.Microsecond {
		t.Errorf("READ mean = %v", read.Mean())
	}
	plugin := stats.Commands[wire.CommandPlugin]
	if plugin == nil || plugin.Nacks != 1 {
		t.Fatalf("PLUGIN stats = %+v", plugin)
	}

	conn := stats.Connections["c0ffee00-1111"]
	if conn == nil || conn.Events != 5 || conn.Module != "zcu102" {
		t.Fatalf("connection stats = %+v", conn)
	}
}

func TestCommandStatsMeanEmpty(t *testing.T) {
	var cs CommandStats
	if cs.Mean() != 0 {
		t.Errorf("Mean() = %v", cs.Mean())
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, session())

	var buf bytes.Buffer
	if err := RunStats(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"TRANSPORT:",
		"HARDWARE:",
		"ERROR:",
		"READ:",
		"ack 1, nack 0, mean 250.000us",
		"PLUGIN:",
		"Connections: 1",
		"[c0ffee00] 5 events",
		"Module: zcu102",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestRunStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Errorf("empty file should not print a time range")
	}
}
