package hw

import (
	"errors"
	"fmt"
)

// Accessor errors.
var (
	// ErrHardwareIO is wrapped by every failure reported by an accessor.
	ErrHardwareIO = errors.New("hardware I/O error")

	// ErrClosed indicates use of a released region or bus session.
	ErrClosed = errors.New("accessor closed")

	// ErrBusy indicates the requested region or bus is already held.
	ErrBusy = errors.New("accessor busy")
)

func ioErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrHardwareIO, fmt.Sprintf(format, args...))
}

func wrapIO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrHardwareIO, op, err)
}
