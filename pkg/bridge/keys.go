package bridge

import (
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
)

// Cache sub-keys.
const (
	SubKeyList      = "list"
	SubKeyDetail    = "detail"
	SubKeyTelemetry = "telemetry"
	SubKeySummary   = "summary"
)

type idFilter struct {
	ID string `json:"id"`
}

// AlertFilter selects the alerts shown in one cached list.
type AlertFilter struct {
	Status   event.AlertStatus `json:"status,omitempty"`
	Severity event.Severity    `json:"severity,omitempty"`
	DeviceID string            `json:"deviceId,omitempty"`
}

// Accepts reports whether a belongs in a list with this filter.
func (f AlertFilter) Accepts(a event.Alert) bool {
	status := a.Status
	if status == "" {
		status = event.AlertStatusActive
	}
	return (f.Status == "" || f.Status == status) &&
		(f.Severity == "" || f.Severity == a.Severity) &&
		(f.DeviceID == "" || f.DeviceID == a.DeviceID)
}

// DeviceFilter selects the devices shown in one cached list.
type DeviceFilter struct {
	Status   event.DeviceStatus `json:"status,omitempty"`
	Location string             `json:"location,omitempty"`
}

// Accepts reports whether d belongs in a list with this filter.
func (f DeviceFilter) Accepts(d event.Device) bool {
	return (f.Status == "" || f.Status == d.Status) &&
		(f.Location == "" || f.Location == d.Location)
}

type summaryFilter struct {
	Period string `json:"period,omitempty"`
}

// AlertListKey is the key of an alert list query.
func AlertListKey(f AlertFilter) cache.Key {
	return cache.MustKey(event.DomainAlerts, SubKeyList, f)
}

// AlertDetailKey is the key of a single alert query.
func AlertDetailKey(id string) cache.Key {
	return cache.MustKey(event.DomainAlerts, SubKeyDetail, idFilter{ID: id})
}

// DeviceListKey is the key of a device list query.
func DeviceListKey(f DeviceFilter) cache.Key {
	return cache.MustKey(event.DomainDevices, SubKeyList, f)
}

// DeviceDetailKey is the key of a single device query.
func DeviceDetailKey(id string) cache.Key {
	return cache.MustKey(event.DomainDevices, SubKeyDetail, idFilter{ID: id})
}

// TelemetryKey is the key of a device's reading history.
func TelemetryKey(deviceID string) cache.Key {
	return cache.MustKey(event.DomainDevices, SubKeyTelemetry, idFilter{ID: deviceID})
}

// SummaryKey is the key of an analytics summary for period ("" for the
// default period).
func SummaryKey(period string) cache.Key {
	return cache.MustKey(event.DomainAnalytics, SubKeySummary, summaryFilter{Period: period})
}

// EntityID returns the id filter of a detail or telemetry key.
func EntityID(k cache.Key) string {
	var f idFilter
	if err := k.DecodeFilter(&f); err != nil {
		return ""
	}
	return f.ID
}

// keysOf returns the cached keys of domain with the given sub-key.
func keysOf(s *cache.Store, domain event.Domain, subKey string) []cache.Key {
	var out []cache.Key
	for _, k := range s.Keys(domain) {
		if k.SubKey == subKey {
			out = append(out, k)
		}
	}
	return out
}
