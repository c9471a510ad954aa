package commands

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

// Record is the flat, named form of an event written by export.
type Record struct {
	Timestamp    string `json:"timestamp" yaml:"timestamp"`
	ConnectionID string `json:"connection_id,omitempty" yaml:"connection_id,omitempty"`
	Direction    string `json:"direction" yaml:"direction"`
	Layer        string `json:"layer" yaml:"layer"`
	Category     string `json:"category" yaml:"category"`
	Role         string `json:"role" yaml:"role"`
	Module       string `json:"module,omitempty" yaml:"module,omitempty"`
	Type         string `json:"type" yaml:"type"`

	Frame   *FrameRecord   `json:"frame,omitempty" yaml:"frame,omitempty"`
	Message *MessageRecord `json:"message,omitempty" yaml:"message,omitempty"`
	State   *StateRecord   `json:"state,omitempty" yaml:"state,omitempty"`
	Error   *ErrorRecord   `json:"error,omitempty" yaml:"error,omitempty"`
}

// FrameRecord is the exported form of a frame event.
type FrameRecord struct {
	Size      int    `json:"size" yaml:"size"`
	Data      string `json:"data,omitempty" yaml:"data,omitempty"`
	Truncated bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// MessageRecord is the exported form of a message event.
type MessageRecord struct {
	RequestID      uint16 `json:"request_id" yaml:"request_id"`
	Command        string `json:"command" yaml:"command"`
	Access         string `json:"access" yaml:"access"`
	Ack            string `json:"ack" yaml:"ack"`
	DataLength     int32  `json:"data_length" yaml:"data_length"`
	ReadLength     int32  `json:"read_length" yaml:"read_length"`
	Shape          string `json:"shape,omitempty" yaml:"shape,omitempty"`
	Payload        string `json:"payload,omitempty" yaml:"payload,omitempty"`
	ProcessingTime string `json:"processing_time,omitempty" yaml:"processing_time,omitempty"`
}

// StateRecord is the exported form of a state change.
type StateRecord struct {
	Entity   string `json:"entity" yaml:"entity"`
	OldState string `json:"old_state,omitempty" yaml:"old_state,omitempty"`
	NewState string `json:"new_state" yaml:"new_state"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ErrorRecord is the exported form of an error event.
type ErrorRecord struct {
	Layer     string  `json:"layer" yaml:"layer"`
	Message   string  `json:"message" yaml:"message"`
	RequestID *uint16 `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Context   string  `json:"context,omitempty" yaml:"context,omitempty"`
}

// NewRecord converts an event for export.
func NewRecord(event log.Event) Record {
	r := Record{
		Timestamp:    event.Timestamp.UTC().Format(timestampLayout),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Layer:        event.Layer.String(),
		Category:     event.Category.String(),
		Role:         event.LocalRole.String(),
		Module:       event.Module,
		Type:         eventLabel(event),
	}
	switch {
	case event.Frame != nil:
		r.Frame = &FrameRecord{
			Size:      event.Frame.Size,
			Data:      hex.EncodeToString(event.Frame.Data),
			Truncated: event.Frame.Truncated,
		}
	case event.Message != nil:
		m := event.Message
		r.Message = &MessageRecord{
			RequestID:  m.RequestID,
			Command:    m.Command.String(),
			Access:     m.Access.String(),
			Ack:        m.Ack.String(),
			DataLength: m.DataLength,
			ReadLength: m.ReadLength,
			Shape:      m.Shape,
			Payload:    m.Payload,
		}
		if m.ProcessingTime != nil {
			r.Message.ProcessingTime = m.ProcessingTime.String()
		}
	case event.StateChange != nil:
		sc := event.StateChange
		r.State = &StateRecord{
			Entity:   sc.Entity.String(),
			OldState: sc.OldState,
			NewState: sc.NewState,
			Reason:   sc.Reason,
		}
	case event.Error != nil:
		e := event.Error
		r.Error = &ErrorRecord{
			Layer:     e.Layer.String(),
			Message:   e.Message,
			RequestID: e.RequestID,
			Context:   e.Context,
		}
	}
	return r
}

// RunExport writes the events of path that match filter to w in format
// (jsonl, yaml or csv).
func RunExport(path string, filter log.Filter, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		return eachEvent(path, filter, func(event log.Event) error {
			if err := enc.Encode(NewRecord(event)); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})

	case "yaml":
		// One YAML document per event, separated by "---".
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err := eachEvent(path, filter, func(event log.Event) error {
			if err := enc.Encode(NewRecord(event)); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
		return err

	case "csv":
		return exportCSV(path, filter, w)

	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, yaml, csv)", format)
	}
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "type", "request_id", "command", "access", "ack"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := eachEvent(path, filter, func(event log.Event) error {
		r := NewRecord(event)
		row := []string{r.Timestamp, r.ConnectionID, r.Direction, r.Layer, r.Category, r.Type, "", "", "", ""}
		if m := r.Message; m != nil {
			row[6] = strconv.Itoa(int(m.RequestID))
			row[7], row[8], row[9] = m.Command, m.Access, m.Ack
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	return err
}
