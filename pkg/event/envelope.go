package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Decoding errors.
var (
	ErrUnknownType  = errors.New("unknown event type")
	ErrEmptyFrame   = errors.New("empty frame")
	ErrTypeMismatch = errors.New("payload does not match envelope type")
)

// ProtocolError reports a frame that could not be turned into an Envelope.
// The frame is dropped; dispatch continues with the next frame.
type ProtocolError struct {
	// Type is the envelope type if it could be read.
	Type Type

	// Reason is a short description of what was wrong.
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.Type != "" {
		msg += " (" + string(e.Type) + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Envelope is a decoded push event. Treat it as immutable.
type Envelope struct {
	Type      Type
	Data      Payload
	Timestamp time.Time // zero when the server omitted it
}

// New builds an envelope for p stamped with ts.
func New(p Payload, ts time.Time) Envelope {
	return Envelope{Type: p.EventType(), Data: p, Timestamp: ts}
}

// wireEnvelope is the JSON shape on the wire.
type wireEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Decode parses a JSON frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	return DecodeAs("", frame)
}

// DecodeAs parses a JSON frame, using override as the envelope type when
// non-empty. The event-stream transport uses this when the stream names
// the event in its own "event:" field.
func DecodeAs(override Type, frame []byte) (Envelope, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Envelope{}, &ProtocolError{Type: override, Reason: "decode envelope", Err: ErrEmptyFrame}
	}

	var w wireEnvelope
	if err := json.Unmarshal(frame, &w); err != nil {
		return Envelope{}, &ProtocolError{Type: override, Reason: "decode envelope", Err: err}
	}

	t := Type(w.Type)
	if override != "" {
		t = override
	}
	if t == "" {
		return Envelope{}, &ProtocolError{Reason: "missing type"}
	}

	p, err := decodePayload(t, w.Data)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{Type: t, Data: p}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return Envelope{}, &ProtocolError{Type: t, Reason: "invalid timestamp", Err: err}
		}
		env.Timestamp = ts
	}
	return env, nil
}

func decodePayload(t Type, data json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case TypeAlertCreated:
		p, err = unmarshal[AlertCreated](data)
	case TypeAlertResolved:
		p, err = unmarshal[AlertResolved](data)
	case TypeAlertRemoved:
		p, err = unmarshal[AlertRemoved](data)
	case TypeDeviceRegistered:
		p, err = unmarshal[DeviceRegistered](data)
	case TypeDeviceTelemetry:
		p, err = unmarshal[DeviceTelemetry](data)
	case TypeDeviceRemoved:
		p, err = unmarshal[DeviceRemoved](data)
	case TypeAnalyticsSummary:
		p, err = unmarshal[AnalyticsSummary](data)
	case TypeHeartbeat:
		p, err = unmarshal[Heartbeat](data)
	case TypeError:
		p, err = unmarshal[ServerError](data)
	default:
		return nil, &ProtocolError{Type: t, Reason: "route", Err: ErrUnknownType}
	}
	if err != nil {
		return nil, &ProtocolError{Type: t, Reason: "decode data", Err: err}
	}
	if err := p.validate(); err != nil {
		return nil, &ProtocolError{Type: t, Reason: "invalid data", Err: err}
	}
	return p, nil
}

func unmarshal[T Payload](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// Encode serializes an envelope to its JSON wire form.
func Encode(env Envelope) ([]byte, error) {
	if env.Data == nil {
		return nil, fmt.Errorf("encode %s: nil payload", env.Type)
	}
	if env.Type != env.Data.EventType() {
		return nil, fmt.Errorf("encode %s: %w", env.Type, ErrTypeMismatch)
	}
	data, err := json.Marshal(env.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	w := wireEnvelope{Type: string(env.Type), Data: data}
	if !env.Timestamp.IsZero() {
		w.Timestamp = env.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// Action is a room control verb.
type Action string

// Control actions.
const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
)

// Control is a client-to-server room control message.
type Control struct {
	Action Action
	Domain Domain
	IDs    []string
}

// Name returns the wire type, e.g. "subscribe:alerts".
func (c Control) Name() string {
	return string(c.Action) + ":" + string(c.Domain)
}

type controlData struct {
	IDs []string `json:"ids,omitempty"`
}

// EncodeControl serializes a control message.
func EncodeControl(c Control) ([]byte, error) {
	w := struct {
		Type string       `json:"type"`
		Data *controlData `json:"data,omitempty"`
	}{Type: c.Name()}
	if len(c.IDs) > 0 {
		w.Data = &controlData{IDs: c.IDs}
	}
	return json.Marshal(w)
}

// DecodeControl parses a control message. Servers and test peers use it.
func DecodeControl(frame []byte) (Control, error) {
	var w struct {
		Type string       `json:"type"`
		Data *controlData `json:"data"`
	}
	if err := json.Unmarshal(frame, &w); err != nil {
		return Control{}, &ProtocolError{Reason: "decode control", Err: err}
	}
	action, domain, ok := strings.Cut(w.Type, ":")
	if !ok || domain == "" {
		return Control{}, &ProtocolError{Type: Type(w.Type), Reason: "malformed control type"}
	}
	c := Control{Action: Action(action), Domain: Domain(domain)}
	switch c.Action {
	case ActionSubscribe, ActionUnsubscribe:
	default:
		return Control{}, &ProtocolError{Type: Type(w.Type), Reason: "unknown control action"}
	}
	if w.Data != nil {
		c.IDs = w.Data.IDs
	}
	return c, nil
}
