package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// FilterOptions holds the filter flags shared by all commands. Empty
// fields match everything.
type FilterOptions struct {
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Command   string
	Access    string
	RequestID string
}

// Build converts the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{ConnectionID: o.ConnID}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}

	if o.Command != "" {
		c, err := wire.ParseCommandType(o.Command)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Command = &c
	}
	if o.Access != "" {
		a, err := wire.ParseAccessTarget(o.Access)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Access = &a
	}
	if o.RequestID != "" {
		n, err := strconv.ParseUint(o.RequestID, 0, 16)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid request-id: %w", err)
		}
		id := uint16(n)
		filter.RequestID = &id
	}
	return filter, nil
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "hardware":
		return log.LayerHardware, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or hardware)", s)
	}
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunFilter copies the events of path that match filter into a new capture
// file and reports how many were written.
func RunFilter(path string, filter log.Filter, output string, report io.Writer) error {
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	err = eachEvent(path, filter, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		return err
	}
	if dropped := logger.Dropped(); dropped > 0 {
		return fmt.Errorf("%d events could not be written to %s", dropped, output)
	}

	fmt.Fprintf(report, "Filtered %d events to %s\n", count, output)
	return nil
}
