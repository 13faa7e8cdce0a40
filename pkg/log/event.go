package log

import (
	"time"
)

// DefaultMaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const DefaultMaxFrameCapture = 4096

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies one connection attempt (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of the data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Transport names the transport variant ("websocket", "eventstream").
	Transport string `cbor:"6,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Envelope    *EnvelopeEvent    `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is server to client.
	DirectionIn Direction = 0
	// DirectionOut is client to server.
	DirectionOut Direction = 1
	// DirectionNone is used for local state changes.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where an event was captured.
type Layer uint8

const (
	// LayerTransport is the raw frame layer.
	LayerTransport Layer = 0
	// LayerEnvelope is the decoded event layer.
	LayerEnvelope Layer = 1
	// LayerSession is the connection/session/room layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerEnvelope:
		return "ENVELOPE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a data frame or decoded envelope.
	CategoryMessage Category = 0
	// CategoryControl is a control message (auth, subscribe, ping...).
	CategoryControl Category = 1
	// CategoryState is a state transition.
	CategoryState Category = 2
	// CategoryError is an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame bytes at the transport layer.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame, truncated to DefaultMaxFrameCapture.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated is set when Data is shorter than Size.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies at most max bytes of data into a FrameEvent.
// A non-positive max uses DefaultMaxFrameCapture.
func NewFrameEvent(data []byte, max int) *FrameEvent {
	if max <= 0 {
		max = DefaultMaxFrameCapture
	}
	fe := &FrameEvent{Size: len(data)}
	if len(data) > max {
		data = data[:max]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), data...)
	return fe
}

// EnvelopeEvent captures a decoded push event.
type EnvelopeEvent struct {
	// Type is the envelope type, e.g. "alert.created".
	Type string `cbor:"1,keyasint"`

	// EntityID is the merge identity carried by the payload, if any.
	EntityID string `cbor:"2,keyasint,omitempty"`

	// Handlers is how many handlers the event was dispatched to.
	Handlers int `cbor:"3,keyasint"`

	// Sent is the server timestamp of the envelope.
	Sent time.Time `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	// Entity that changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, if known.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the connection lifecycle.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the reference-counted session.
	StateEntitySession StateEntity = 1
	// StateEntityRoom is a server room subscription.
	StateEntityRoom StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityRoom:
		return "ROOM"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures a control message.
type ControlEvent struct {
	// Type of control message.
	Type ControlType `cbor:"1,keyasint"`

	// Room is the control target for subscribe/unsubscribe ("alerts", "devices:d-1").
	Room string `cbor:"2,keyasint,omitempty"`
}

// ControlType is the kind of control message.
type ControlType uint8

const (
	// ControlAuth is the authentication handshake frame.
	ControlAuth ControlType = 0
	// ControlSubscribe is a room subscribe request.
	ControlSubscribe ControlType = 1
	// ControlUnsubscribe is a room unsubscribe request.
	ControlUnsubscribe ControlType = 2
	// ControlPing is a keepalive ping.
	ControlPing ControlType = 3
	// ControlPong is a keepalive pong.
	ControlPong ControlType = 4
	// ControlClose is a close handshake.
	ControlClose ControlType = 5
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlAuth:
		return "AUTH"
	case ControlSubscribe:
		return "SUBSCRIBE"
	case ControlUnsubscribe:
		return "UNSUBSCRIBE"
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind classifies errors by recovery policy.
type ErrorKind uint8

const (
	// ErrorTransport: connection dropped or failed to open; retried with backoff.
	ErrorTransport ErrorKind = 0
	// ErrorNotAuthenticated: no credential available; not retried.
	ErrorNotAuthenticated ErrorKind = 1
	// ErrorHandler: a subscriber failed; isolated.
	ErrorHandler ErrorKind = 2
	// ErrorProtocol: malformed frame; dropped.
	ErrorProtocol ErrorKind = 3
	// ErrorServer: a server-pushed error event.
	ErrorServer ErrorKind = 4
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "TRANSPORT"
	case ErrorNotAuthenticated:
		return "NOT_AUTHENTICATED"
	case ErrorHandler:
		return "HANDLER"
	case ErrorProtocol:
		return "PROTOCOL"
	case ErrorServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Kind is the error class.
	Kind ErrorKind `cbor:"2,keyasint"`

	// Message is the error text.
	Message string `cbor:"3,keyasint"`

	// Code is a server-supplied error code, if any.
	Code string `cbor:"4,keyasint,omitempty"`

	// Context describes the operation being performed.
	Context string `cbor:"5,keyasint,omitempty"`
}
