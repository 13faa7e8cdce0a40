package event

import (
	"errors"
	"time"
)

// Payload is the data of one envelope. The set of implementations is
// closed: one struct per Type.
type Payload interface {
	// EventType returns the tag this payload is carried under.
	EventType() Type

	validate() error
}

// AlertCreated announces a new alert.
type AlertCreated struct {
	Alert
}

// AlertResolved marks an alert as resolved.
type AlertResolved struct {
	AlertID    string    `json:"alertId"`
	ResolvedAt time.Time `json:"resolvedAt"`
	ResolvedBy string    `json:"resolvedBy,omitempty"`
}

// AlertRemoved deletes an alert.
type AlertRemoved struct {
	AlertID string `json:"alertId"`
}

// DeviceRegistered announces a new device.
type DeviceRegistered struct {
	Device
}

// DeviceTelemetry carries a live reading and status for a device.
type DeviceTelemetry struct {
	DeviceID  string             `json:"deviceId"`
	Status    DeviceStatus       `json:"status,omitempty"`
	Battery   *float64           `json:"battery,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Reading returns the telemetry sample carried by the event.
func (p DeviceTelemetry) Reading() Reading {
	return Reading{DeviceID: p.DeviceID, Timestamp: p.Timestamp, Values: p.Values}
}

// DeviceRemoved deletes a device.
type DeviceRemoved struct {
	DeviceID string `json:"deviceId"`
}

// AnalyticsSummary is a full replacement of a period's summary.
type AnalyticsSummary struct {
	Summary
}

// Heartbeat is a server liveness tick.
type Heartbeat struct {
	ServerTime time.Time `json:"serverTime,omitempty"`
}

// ServerError is a generic error pushed by the server.
type ServerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error implements error so a ServerError can be logged or wrapped directly.
func (p ServerError) Error() string {
	if p.Code == "" {
		return "server error: " + p.Message
	}
	return "server error " + p.Code + ": " + p.Message
}

var errMissingID = errors.New("missing identity")

func (AlertCreated) EventType() Type     { return TypeAlertCreated }
func (AlertResolved) EventType() Type    { return TypeAlertResolved }
func (AlertRemoved) EventType() Type     { return TypeAlertRemoved }
func (DeviceRegistered) EventType() Type { return TypeDeviceRegistered }
func (DeviceTelemetry) EventType() Type  { return TypeDeviceTelemetry }
func (DeviceRemoved) EventType() Type    { return TypeDeviceRemoved }
func (AnalyticsSummary) EventType() Type { return TypeAnalyticsSummary }
func (Heartbeat) EventType() Type        { return TypeHeartbeat }
func (ServerError) EventType() Type      { return TypeError }

func (p AlertCreated) validate() error     { return requireID(p.ID) }
func (p AlertResolved) validate() error    { return requireID(p.AlertID) }
func (p AlertRemoved) validate() error     { return requireID(p.AlertID) }
func (p DeviceRegistered) validate() error { return requireID(p.ID) }
func (p DeviceTelemetry) validate() error  { return requireID(p.DeviceID) }
func (p DeviceRemoved) validate() error    { return requireID(p.DeviceID) }
func (AnalyticsSummary) validate() error   { return nil }
func (Heartbeat) validate() error          { return nil }

func (p ServerError) validate() error {
	if p.Message == "" {
		return errors.New("missing message")
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return errMissingID
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Payload = AlertCreated{}
	_ Payload = AlertResolved{}
	_ Payload = AlertRemoved{}
	_ Payload = DeviceRegistered{}
	_ Payload = DeviceTelemetry{}
	_ Payload = DeviceRemoved{}
	_ Payload = AnalyticsSummary{}
	_ Payload = Heartbeat{}
	_ Payload = ServerError{}
)

// EntityID returns the merge identity carried by p, or "" if it has none.
func EntityID(p Payload) string {
	switch v := p.(type) {
	case AlertCreated:
		return v.ID
	case AlertResolved:
		return v.AlertID
	case AlertRemoved:
		return v.AlertID
	case DeviceRegistered:
		return v.ID
	case DeviceTelemetry:
		return v.DeviceID
	case DeviceRemoved:
		return v.DeviceID
	default:
		return ""
	}
}
