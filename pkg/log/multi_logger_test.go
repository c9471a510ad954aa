package log

import (
	"sync"
	"testing"
	"time"
)

// recordingLogger records events for testing.
type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	a, b, c := &recordingLogger{}, &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(a, b, c)

	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "conn-123"})

	for i, r := range []*recordingLogger{a, b, c} {
		if r.count() != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, r.count())
			continue
		}
		if r.events[0].ConnectionID != "conn-123" {
			t.Errorf("logger %d: ConnectionID = %q", i, r.events[0].ConnectionID)
		}
	}
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	r := &recordingLogger{}
	multi := NewMultiLogger(nil, r, nil)
	multi.Log(Event{})
	if r.count() != 1 {
		t.Errorf("got %d events, want 1", r.count())
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	NewMultiLogger().Log(Event{ConnectionID: "x"})
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop should return a non-nil logger unchanged")
	}
	NoopLogger{}.Log(Event{})
}
