package bridge

import (
	"log/slog"
	"maps"
	"reflect"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// DefaultHistoryLimit bounds a cached telemetry history.
const DefaultHistoryLimit = 100

// DevicesConfig configures the device bridge.
type DevicesConfig struct {
	// HistoryLimit bounds each telemetry history (default 100).
	HistoryLimit int

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

// Devices merges device events into device lists, details and telemetry
// histories.
type Devices struct {
	store  *cache.Store
	limit  int
	logger *slog.Logger
}

// NewDevices creates the device bridge.
func NewDevices(store *cache.Store, cfg DevicesConfig) *Devices {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Devices{
		store:  store,
		limit:  cfg.HistoryLimit,
		logger: orDiscard(cfg.Logger).With("bridge", event.DomainDevices),
	}
}

// Domain returns event.DomainDevices.
func (b *Devices) Domain() event.Domain { return event.DomainDevices }

// Register subscribes to device.registered, device.telemetry and
// device.removed.
func (b *Devices) Register(r *subscription.Registry) func() {
	return chain(
		subscription.On(r, func(p event.DeviceRegistered, _ event.Envelope) { b.Registered(p) }),
		subscription.On(r, func(p event.DeviceTelemetry, _ event.Envelope) { b.Telemetry(p) }),
		subscription.On(r, func(p event.DeviceRemoved, _ event.Envelope) { b.Removed(p) }),
	)
}

// Registered prepends the device into accepting lists and replaces a
// cached detail entry. Uncached details stay uncached.
func (b *Devices) Registered(p event.DeviceRegistered) {
	d := p.Device
	for _, key := range keysOf(b.store, event.DomainDevices, SubKeyList) {
		var f DeviceFilter
		if err := key.DecodeFilter(&f); err != nil || !f.Accepts(d) {
			continue
		}
		cache.UpdateAs(b.store, key, func(list []event.Device, ok bool) ([]event.Device, bool) {
			if !ok {
				return nil, false
			}
			return PrependDevice(list, d)
		})
	}

	cache.UpdateAs(b.store, DeviceDetailKey(d.ID), func(cur event.Device, ok bool) (event.Device, bool) {
		if !ok {
			return cur, false
		}
		return d, !reflect.DeepEqual(cur, d)
	})
	b.logger.Debug("device registered", "device_id", d.ID)
}

// Telemetry refreshes the device's live fields wherever it is cached and
// records the reading in its history.
func (b *Devices) Telemetry(p event.DeviceTelemetry) {
	for _, key := range keysOf(b.store, event.DomainDevices, SubKeyList) {
		var f DeviceFilter
		if err := key.DecodeFilter(&f); err != nil {
			continue
		}
		cache.UpdateAs(b.store, key, func(list []event.Device, ok bool) ([]event.Device, bool) {
			if !ok {
				return nil, false
			}
			return TelemetryInList(list, p, f)
		})
	}

	cache.UpdateAs(b.store, DeviceDetailKey(p.DeviceID), func(cur event.Device, ok bool) (event.Device, bool) {
		if !ok {
			return cur, false
		}
		return ApplyTelemetry(cur, p)
	})

	if len(p.Values) > 0 {
		cache.UpdateAs(b.store, TelemetryKey(p.DeviceID), func(hist []event.Reading, ok bool) ([]event.Reading, bool) {
			if !ok {
				return nil, false
			}
			return PrependReading(hist, p.Reading(), b.limit)
		})
	}
}

// Removed drops the device from every list along with its detail and
// history entries.
func (b *Devices) Removed(p event.DeviceRemoved) {
	for _, key := range keysOf(b.store, event.DomainDevices, SubKeyList) {
		cache.UpdateAs(b.store, key, func(list []event.Device, ok bool) ([]event.Device, bool) {
			if !ok {
				return nil, false
			}
			return RemoveDevice(list, p.DeviceID)
		})
	}
	b.store.Delete(DeviceDetailKey(p.DeviceID))
	b.store.Delete(TelemetryKey(p.DeviceID))
	b.logger.Debug("device removed", "device_id", p.DeviceID)
}

// PrependDevice returns list with d in front unless a device with the
// same ID is present.
func PrependDevice(list []event.Device, d event.Device) ([]event.Device, bool) {
	if indexDevice(list, d.ID) >= 0 {
		return list, false
	}
	out := make([]event.Device, 0, len(list)+1)
	out = append(out, d)
	return append(out, list...), true
}

// RemoveDevice returns list without the device with id.
func RemoveDevice(list []event.Device, id string) ([]event.Device, bool) {
	i := indexDevice(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]event.Device, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// ApplyTelemetry copies the event's live fields onto d. Telemetry older
// than d.LastSeen is ignored.
func ApplyTelemetry(d event.Device, p event.DeviceTelemetry) (event.Device, bool) {
	if p.Timestamp.Before(d.LastSeen) {
		return d, false
	}

	next := d
	if p.Status != "" {
		next.Status = p.Status
	}
	if p.Battery != nil {
		battery := *p.Battery
		next.Battery = &battery
	}
	next.LastSeen = p.Timestamp
	if len(p.Values) > 0 {
		latest := make(map[string]float64, len(d.Latest)+len(p.Values))
		maps.Copy(latest, d.Latest)
		maps.Copy(latest, p.Values)
		next.Latest = latest
	}

	if reflect.DeepEqual(next, d) {
		return d, false
	}
	return next, true
}

// TelemetryInList applies p to the device in list, removing it if f no
// longer accepts the updated device.
func TelemetryInList(list []event.Device, p event.DeviceTelemetry, f DeviceFilter) ([]event.Device, bool) {
	i := indexDevice(list, p.DeviceID)
	if i < 0 {
		return list, false
	}
	next, changed := ApplyTelemetry(list[i], p)
	if !f.Accepts(next) {
		return RemoveDevice(list, p.DeviceID)
	}
	if !changed {
		return list, false
	}
	out := append([]event.Device(nil), list...)
	out[i] = next
	return out, true
}

// PrependReading returns hist with r in front, newest first, bounded to
// limit. A reading with a timestamp already present is a duplicate.
func PrependReading(hist []event.Reading, r event.Reading, limit int) ([]event.Reading, bool) {
	for _, h := range hist {
		if h.Timestamp.Equal(r.Timestamp) {
			return hist, false
		}
	}
	out := make([]event.Reading, 0, min(len(hist)+1, limit))
	out = append(out, r)
	for _, h := range hist {
		if len(out) == limit {
			break
		}
		out = append(out, h)
	}
	return out, true
}

func indexDevice(list []event.Device, id string) int {
	for i, d := range list {
		if d.ID == id {
			return i
		}
	}
	return -1
}
