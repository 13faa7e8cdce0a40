// Package log provides structured protocol capture for the push connection.
//
// This package defines the Logger interface and Event types for recording
// what crossed the wire and how the connection reacted: raw frames, decoded
// envelopes, room control messages, state transitions and errors. It is
// separate from operational logging (slog) - protocol capture is a complete
// machine-readable trace for debugging sync issues after the fact.
//
// # Basic Usage
//
//	// Development: mirror events to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Field debugging: append to a capture file
//	fl, _ := log.NewFileLogger("/tmp/dashboard.lslog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Layers
//
//   - Transport: raw frames and control messages (FrameEvent, ControlEvent)
//   - Envelope: decoded push events (EnvelopeEvent)
//   - Session: connection, session and room state (StateChangeEvent)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys
// (.lslog). Reader iterates them with an optional Filter.
package log
