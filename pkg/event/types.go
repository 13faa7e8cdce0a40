package event

import (
	"time"
)

// Type identifies the kind of push event and routes it to subscribers.
type Type string

// Server event types.
const (
	TypeAlertCreated     Type = "alert.created"
	TypeAlertResolved    Type = "alert.resolved"
	TypeAlertRemoved     Type = "alert.removed"
	TypeDeviceRegistered Type = "device.registered"
	TypeDeviceTelemetry  Type = "device.telemetry"
	TypeDeviceRemoved    Type = "device.removed"
	TypeAnalyticsSummary Type = "analytics.summary"
	TypeHeartbeat        Type = "heartbeat"
	TypeError            Type = "error"
)

// Types lists every server event type in a stable order.
func Types() []Type {
	return []Type{
		TypeAlertCreated,
		TypeAlertResolved,
		TypeAlertRemoved,
		TypeDeviceRegistered,
		TypeDeviceTelemetry,
		TypeDeviceRemoved,
		TypeAnalyticsSummary,
		TypeHeartbeat,
		TypeError,
	}
}

// Domain returns the cache domain an event type belongs to, or "" for
// connection-level events (heartbeat, error).
func (t Type) Domain() Domain {
	switch t {
	case TypeAlertCreated, TypeAlertResolved, TypeAlertRemoved:
		return DomainAlerts
	case TypeDeviceRegistered, TypeDeviceTelemetry, TypeDeviceRemoved:
		return DomainDevices
	case TypeAnalyticsSummary:
		return DomainAnalytics
	default:
		return ""
	}
}

// Domain is a feature area of the dashboard. It names both cache
// domains and server rooms.
type Domain string

// Known domains.
const (
	DomainAlerts    Domain = "alerts"
	DomainDevices   Domain = "devices"
	DomainAnalytics Domain = "analytics"
)

// Severity of an alert.
type Severity string

// Alert severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle status of an alert.
type AlertStatus string

// Alert statuses.
const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert is a threshold or health alert raised for a device.
type Alert struct {
	ID         string      `json:"alertId"`
	DeviceID   string      `json:"deviceId"`
	Severity   Severity    `json:"severity"`
	Status     AlertStatus `json:"status"`
	Message    string      `json:"message"`
	Metric     string      `json:"metric,omitempty"`
	Value      float64     `json:"value,omitempty"`
	Threshold  float64     `json:"threshold,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	ResolvedAt *time.Time  `json:"resolvedAt,omitempty"`
}

// DeviceStatus is the connectivity status of a sensor.
type DeviceStatus string

// Device statuses.
const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceFault   DeviceStatus = "fault"
)

// Device is a sensor known to the backend.
type Device struct {
	ID       string             `json:"deviceId"`
	Name     string             `json:"name"`
	Location string             `json:"location,omitempty"`
	Status   DeviceStatus       `json:"status"`
	Battery  *float64           `json:"battery,omitempty"`
	LastSeen time.Time          `json:"lastSeen"`
	Latest   map[string]float64 `json:"latest,omitempty"`
}

// Reading is one telemetry sample from a device.
type Reading struct {
	DeviceID  string             `json:"deviceId"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Summary is the periodic analytics rollup.
type Summary struct {
	Period           string             `json:"period"`
	GeneratedAt      time.Time          `json:"generatedAt"`
	TotalDevices     int                `json:"totalDevices"`
	OnlineDevices    int                `json:"onlineDevices"`
	ActiveAlerts     int                `json:"activeAlerts"`
	AlertsBySeverity map[Severity]int   `json:"alertsBySeverity,omitempty"`
	Averages         map[string]float64 `json:"averages,omitempty"`
}
