// Package log provides structured protocol logging for HWCP.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at the transport, wire and hardware layers. It is
// separate from operational logging (slog): protocol capture records every
// frame and message so an exchange with a hardware module can be replayed
// and inspected offline.
//
// # Basic Usage
//
//	// Development: protocol events on the console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// Production: binary capture file
//	logger, err := log.NewFileLogger("/var/log/hwcp/server.hlog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Connection lifecycle (StateChangeEvent)
//   - Errors at any layer (ErrorEventData)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .hlog extension.
// The hwcp-log tool views, filters and exports them.
package log
