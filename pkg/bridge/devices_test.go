package bridge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

func device(id string, status event.DeviceStatus) event.Device {
	return event.Device{ID: id, Name: "sensor " + id, Location: "hall", Status: status, LastSeen: t0}
}

func setupDevices(t *testing.T, limit int) (*cache.Store, *subscription.Registry) {
	t.Helper()
	store, _ := newStore(nil)
	r := subscription.NewRegistry(subscription.Config{})
	bridge.NewDevices(store, bridge.DevicesConfig{HistoryLimit: limit}).Register(r)
	return store, r
}

func TestDeviceRegistered(t *testing.T) {
	store, r := setupDevices(t, 0)
	all := bridge.DeviceListKey(bridge.DeviceFilter{})
	offline := bridge.DeviceListKey(bridge.DeviceFilter{Status: event.DeviceOffline})
	store.Set(all, []event.Device{device("d-1", event.DeviceOnline)})
	store.Set(offline, []event.Device{})

	p := event.DeviceRegistered{Device: device("d-2", event.DeviceOnline)}
	dispatch(r, p)
	dispatch(r, p)

	list, _ := cache.GetAs[[]event.Device](store, all)
	require.Len(t, list, 2)
	assert.Equal(t, "d-2", list[0].ID)

	list, _ = cache.GetAs[[]event.Device](store, offline)
	assert.Empty(t, list)

	_, ok := store.Get(bridge.DeviceDetailKey("d-2"))
	assert.False(t, ok, "uncached detail stays uncached")
	assert.Equal(t, 2, store.Len())
}

func TestDeviceRegisteredReplacesCachedDetail(t *testing.T) {
	store, r := setupDevices(t, 0)
	key := bridge.DeviceDetailKey("d-1")
	store.Set(key, device("d-1", event.DeviceOffline))

	dispatch(r, event.DeviceRegistered{Device: device("d-1", event.DeviceOnline)})

	detail, ok := cache.GetAs[event.Device](store, key)
	require.True(t, ok)
	assert.Equal(t, event.DeviceOnline, detail.Status)
	assert.Equal(t, 1, store.Len())
}

func TestDeviceTelemetry(t *testing.T) {
	store, r := setupDevices(t, 3)
	online := bridge.DeviceListKey(bridge.DeviceFilter{Status: event.DeviceOnline})
	all := bridge.DeviceListKey(bridge.DeviceFilter{})
	d := device("d-1", event.DeviceOnline)
	d.Latest = map[string]float64{"humidity": 40}
	store.Set(online, []event.Device{d})
	store.Set(all, []event.Device{d})
	store.Set(bridge.DeviceDetailKey("d-1"), d)
	store.Set(bridge.TelemetryKey("d-1"), []event.Reading{})

	p := event.DeviceTelemetry{
		DeviceID:  "d-1",
		Status:    event.DeviceFault,
		Battery:   ptr(0.42),
		Timestamp: t0.Add(time.Minute),
		Values:    map[string]float64{"temperature": 21.5},
	}
	dispatch(r, p)

	list, _ := cache.GetAs[[]event.Device](store, online)
	assert.Empty(t, list, "device no longer matches the online filter")

	list, _ = cache.GetAs[[]event.Device](store, all)
	require.Len(t, list, 1)
	assert.Equal(t, event.DeviceFault, list[0].Status)
	assert.Equal(t, 0.42, *list[0].Battery)
	assert.Equal(t, map[string]float64{"humidity": 40, "temperature": 21.5}, list[0].Latest)

	detail, _ := cache.GetAs[event.Device](store, bridge.DeviceDetailKey("d-1"))
	assert.Equal(t, p.Timestamp, detail.LastSeen)

	hist, _ := cache.GetAs[[]event.Reading](store, bridge.TelemetryKey("d-1"))
	require.Len(t, hist, 1)
	assert.Equal(t, 21.5, hist[0].Values["temperature"])

	assert.Equal(t, map[string]float64{"humidity": 40}, d.Latest, "cached maps are not mutated")
}

func TestTelemetryHistoryBoundedAndDeduplicated(t *testing.T) {
	store, r := setupDevices(t, 3)
	key := bridge.TelemetryKey("d-1")
	store.Set(key, []event.Reading{})

	for i := 0; i < 5; i++ {
		p := event.DeviceTelemetry{DeviceID: "d-1", Timestamp: t0.Add(time.Duration(i) * time.Second), Values: map[string]float64{"v": float64(i)}}
		dispatch(r, p)
		dispatch(r, p)
	}

	hist, _ := cache.GetAs[[]event.Reading](store, key)
	require.Len(t, hist, 3)
	assert.Equal(t, 4.0, hist[0].Values["v"])
	assert.Equal(t, 2.0, hist[2].Values["v"])
}

func TestTelemetryForUncachedHistoryIsSkipped(t *testing.T) {
	store, r := setupDevices(t, 0)
	dispatch(r, event.DeviceTelemetry{DeviceID: "d-1", Timestamp: t0, Values: map[string]float64{"v": 1}})
	assert.Equal(t, 0, store.Len())
}

func TestStaleTelemetryIgnored(t *testing.T) {
	d := device("d-1", event.DeviceOnline)
	next, changed := bridge.ApplyTelemetry(d, event.DeviceTelemetry{DeviceID: "d-1", Status: event.DeviceOffline, Timestamp: t0.Add(-time.Hour)})
	assert.False(t, changed)
	assert.Equal(t, d, next)
}

func TestDeviceRemoved(t *testing.T) {
	store, r := setupDevices(t, 0)
	key := bridge.DeviceListKey(bridge.DeviceFilter{})
	store.Set(key, []event.Device{device("d-1", event.DeviceOnline), device("d-2", event.DeviceOnline)})
	store.Set(bridge.DeviceDetailKey("d-1"), device("d-1", event.DeviceOnline))
	store.Set(bridge.TelemetryKey("d-1"), []event.Reading{})

	dispatch(r, event.DeviceRemoved{DeviceID: "d-1"})
	dispatch(r, event.DeviceRemoved{DeviceID: "d-1"})

	list, _ := cache.GetAs[[]event.Device](store, key)
	require.Len(t, list, 1)
	assert.Equal(t, "d-2", list[0].ID)
	assert.Equal(t, 1, store.Len())
}

func TestDeviceMergesAreIdempotent(t *testing.T) {
	base := []event.Device{device("d-1", event.DeviceOnline), device("d-2", event.DeviceOffline)}
	telemetry := event.DeviceTelemetry{DeviceID: "d-2", Status: event.DeviceOnline, Timestamp: t0.Add(time.Minute), Values: map[string]float64{"t": 1}}

	tests := []struct {
		name  string
		merge func([]event.Device) ([]event.Device, bool)
	}{
		{"prepend", func(l []event.Device) ([]event.Device, bool) {
			return bridge.PrependDevice(l, device("d-3", event.DeviceOnline))
		}},
		{"remove", func(l []event.Device) ([]event.Device, bool) { return bridge.RemoveDevice(l, "d-1") }},
		{"telemetry kept", func(l []event.Device) ([]event.Device, bool) {
			return bridge.TelemetryInList(l, telemetry, bridge.DeviceFilter{})
		}},
		{"telemetry dropped", func(l []event.Device) ([]event.Device, bool) {
			return bridge.TelemetryInList(l, telemetry, bridge.DeviceFilter{Status: event.DeviceOffline})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := append([]event.Device(nil), base...)
			once, _ := tc.merge(in)
			twice, changed := tc.merge(once)
			assert.Equal(t, once, twice)
			assert.False(t, changed)
			assert.Equal(t, base, in)
		})
	}
}
