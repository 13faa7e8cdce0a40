package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

func TestAnalyticsSummaryReplaces(t *testing.T) {
	store, _ := newStore(nil)
	r := subscription.NewRegistry(subscription.Config{})
	bridge.NewAnalytics(store, nil).Register(r)

	key := bridge.SummaryKey("24h")
	store.Set(key, event.Summary{Period: "24h", TotalDevices: 3})
	store.Invalidate(key)

	s := event.Summary{Period: "24h", TotalDevices: 5, OnlineDevices: 4, ActiveAlerts: 2}
	dispatch(r, event.AnalyticsSummary{Summary: s})

	e, ok := store.Get(key)
	require.True(t, ok)
	assert.False(t, e.Stale, "a pushed summary is fresh")
	assert.Equal(t, s, e.Value)

	dispatch(r, event.AnalyticsSummary{Summary: s})
	again, _ := store.Get(key)
	assert.Equal(t, e.Version, again.Version)

	// Seeds on a miss.
	dispatch(r, event.AnalyticsSummary{Summary: event.Summary{Period: "7d"}})
	_, ok = cache.GetAs[event.Summary](store, bridge.SummaryKey("7d"))
	assert.True(t, ok)
}

func TestRegisterAll(t *testing.T) {
	store, _ := newStore(nil)
	r := subscription.NewRegistry(subscription.Config{})
	bridges := bridge.All(store, nil)

	unregister := bridge.RegisterAll(r, bridges...)
	assert.Equal(t, []event.Domain{event.DomainAlerts, event.DomainDevices, event.DomainAnalytics}, bridge.Domains(bridges...))
	assert.Len(t, r.Types(), 7)

	unregister()
	assert.Empty(t, r.Types())
}

func TestKeysRoundTripEntityID(t *testing.T) {
	assert.Equal(t, "a-1", bridge.EntityID(bridge.AlertDetailKey("a-1")))
	assert.Equal(t, "d-1", bridge.EntityID(bridge.TelemetryKey("d-1")))
	assert.Equal(t, "", bridge.EntityID(bridge.AlertListKey(bridge.AlertFilter{})))
}
