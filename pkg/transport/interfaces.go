package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrNotOpen         = errors.New("connection not open")
	ErrClosed          = errors.New("connection closed")
	ErrSendUnsupported = errors.New("transport is receive-only")
	ErrInvalidURL      = errors.New("invalid transport URL")
)

// Message is one inbound frame.
type Message struct {
	// Event is the stream-level event name (event-stream only).
	Event string

	// Data is the frame payload, normally a JSON envelope.
	Data []byte
}

// Handler receives the progress of one connection attempt. Calls for a
// single Conn are never concurrent and arrive in order: OnOpen at most
// once, then any number of OnMessage, then OnClose at most once.
type Handler interface {
	// OnOpen is called once the connection is established and authenticated.
	OnOpen()

	// OnMessage is called for every inbound frame.
	OnMessage(msg Message)

	// OnClose is called when the connection failed to open or ended.
	// err is nil for a clean server-initiated close.
	OnClose(err error)
}

// Conn is one connection attempt.
type Conn interface {
	// ID uniquely identifies the attempt in protocol captures.
	ID() string

	// Send writes a frame to the server.
	Send(data []byte) error

	// Close tears the connection down. It is idempotent and the handler
	// receives no further callbacks.
	Close() error
}

// Transport opens connections.
type Transport interface {
	// Name identifies the variant ("websocket", "eventstream").
	Name() string

	// Open starts a connection attempt authenticated with token. It does
	// not block on the network.
	Open(token string, h Handler) (Conn, error)
}

// StatusError reports a handshake rejected with an HTTP status, e.g. an
// expired credential.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d", e.Code)
}

// Unauthorized reports whether the server rejected the credential.
func (e *StatusError) Unauthorized() bool {
	return e.Code == 401 || e.Code == 403
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*WebSocket)(nil)
	_ Transport = (*EventStream)(nil)
	_ Conn      = (*wsConn)(nil)
	_ Conn      = (*sseConn)(nil)
)
