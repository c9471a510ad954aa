package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"encoded record", []byte{0xA4, 0x01, 0xA7, 0x01, 0x01}},
		{"medium message", bytes.Repeat([]byte("x"), 1000)},
		{"max size message", bytes.Repeat([]byte("y"), DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			if err := NewFrameWriter(buf).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size = %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}
			if got := binary.BigEndian.Uint32(buf.Bytes()[:LengthPrefixSize]); got != uint32(len(tt.payload)) {
				t.Errorf("length prefix = %d, want %d", got, len(tt.payload))
			}

			got, err := NewFrameReader(buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	tests := []struct {
		name    string
		max     uint32
		payload []byte
		wantErr error
	}{
		{"empty", DefaultMaxMessageSize, nil, ErrMessageEmpty},
		{"too large", 8, make([]byte, 9), ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			err := NewFrameWriterWithMaxSize(buf, tt.max).WriteFrame(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes written for a rejected frame", buf.Len())
			}
		})
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		return binary.BigEndian.AppendUint32(nil, n)
	}

	tests := []struct {
		name    string
		input   []byte
		max     uint32
		wantErr error
	}{
		{"clean EOF", nil, DefaultMaxMessageSize, io.EOF},
		{"zero length", prefix(0), DefaultMaxMessageSize, ErrMessageEmpty},
		{"length over max", prefix(17), 16, ErrMessageTooLarge},
		{"truncated prefix", []byte{0x00, 0x00}, DefaultMaxMessageSize, ErrFrameTruncated},
		{"truncated payload", append(prefix(10), 1, 2, 3), DefaultMaxMessageSize, ErrFrameTruncated},
		{"missing payload", prefix(4), DefaultMaxMessageSize, ErrFrameTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFrameReaderWithMaxSize(bytes.NewReader(tt.input), tt.max)
			_, err := r.ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMultipleFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewFrameWriter(buf)
	frames := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	r := NewFrameReader(buf)
	for i, want := range frames {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %v, want %v", i, got, want)
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("after last frame err = %v, want io.EOF", err)
	}
}

func TestFrameWriterConcurrent(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewFrameWriter(buf)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			for range perWriter {
				if err := w.WriteFrame(bytes.Repeat([]byte{b}, int(b)+1)); err != nil {
					t.Errorf("WriteFrame: %v", err)
				}
			}
		}(byte(i))
	}
	wg.Wait()

	r := NewFrameReader(buf)
	for n := 0; n < writers*perWriter; n++ {
		f, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
		if len(f) != int(f[0])+1 || !bytes.Equal(f, bytes.Repeat(f[:1], len(f))) {
			t.Fatalf("frame %d interleaved: %v", n, f)
		}
	}
}

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogsFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}
	f := NewFramer(buf)
	f.SetLogger(logger, "conn-1")

	payload := []byte{0xA4, 0x01}
	if err := f.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for i, dir := range []log.Direction{log.DirectionOut, log.DirectionIn} {
		e := events[i]
		if e.Direction != dir {
			t.Errorf("event %d direction = %v, want %v", i, e.Direction, dir)
		}
		if e.ConnectionID != "conn-1" || e.Layer != log.LayerTransport || e.Category != log.CategoryMessage {
			t.Errorf("event %d = %+v", i, e)
		}
		if e.Frame == nil || e.Frame.Size != FrameSize(len(payload)) || !bytes.Equal(e.Frame.Data, payload) {
			t.Errorf("event %d frame = %+v", i, e.Frame)
		}
	}
}

func TestFramerLogsTruncatedData(t *testing.T) {
	logger := &capturingLogger{}
	w := NewFrameWriter(io.Discard)
	w.SetLogger(logger, "conn-trunc")

	if err := w.WriteFrame(make([]byte, log.MaxFrameCapture*2)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	e := logger.Events()[0]
	if !e.Frame.Truncated || len(e.Frame.Data) != log.MaxFrameCapture {
		t.Errorf("frame = size %d, data %d, truncated %v", e.Frame.Size, len(e.Frame.Data), e.Frame.Truncated)
	}
	if e.Frame.Size != FrameSize(log.MaxFrameCapture*2) {
		t.Errorf("size = %d", e.Frame.Size)
	}
}

func BenchmarkFrameWrite(b *testing.B) {
	payload := bytes.Repeat([]byte("x"), 64)
	w := NewFrameWriter(io.Discard)
	b.ResetTimer()
	for b.Loop() {
		_ = w.WriteFrame(payload)
	}
}
