package status_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorwatch/livesync/internal/status"
	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

type source struct {
	snap   connection.Snapshot
	store  *cache.Store
	rooms  *subscription.Rooms
	events *subscription.Registry
}

func (s *source) ConnectionState() connection.Snapshot { return s.snap }
func (s *source) SessionCount() int                    { return 2 }
func (s *source) Cache() *cache.Store                  { return s.store }
func (s *source) Rooms() *subscription.Rooms           { return s.rooms }
func (s *source) Events() *subscription.Registry       { return s.events }

func newSource() *source {
	return &source{
		snap:   connection.Snapshot{State: connection.StateError, Err: errors.New("reset by peer")},
		store:  cache.NewStore(cache.Config{}),
		rooms:  subscription.NewRooms(subscription.RoomsConfig{}),
		events: subscription.NewRegistry(subscription.Config{}),
	}
}

func get(t *testing.T, h http.Handler, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
	}
	return rec.Code
}

func TestState(t *testing.T) {
	src := newSource()
	src.rooms.Join(subscription.Room{Domain: event.DomainDevices, EntityID: "d-1"})
	src.events.Subscribe(event.TypeAlertCreated, func(event.Envelope) {})
	h := status.NewRouter(src, nil)

	var resp status.StateResponse
	require.Equal(t, http.StatusOK, get(t, h, "/state", &resp))
	assert.Equal(t, "ERROR", resp.State)
	assert.Equal(t, "reset by peer", resp.Error)
	assert.Equal(t, 2, resp.Sessions)
	assert.Equal(t, []string{"devices:d-1"}, resp.Rooms)
	assert.Equal(t, []event.Type{event.TypeAlertCreated}, resp.Handlers)
}

func TestHealthz(t *testing.T) {
	h := status.NewRouter(newSource(), nil)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil))
}

func TestCache(t *testing.T) {
	src := newSource()
	alerts := bridge.AlertListKey(bridge.AlertFilter{Severity: event.SeverityCritical})
	src.store.Set(alerts, []event.Alert{{ID: "a-1"}})
	src.store.Set(bridge.SummaryKey(""), event.Summary{TotalDevices: 3})
	src.store.Invalidate(alerts)
	h := status.NewRouter(src, nil)

	var all []status.EntryInfo
	require.Equal(t, http.StatusOK, get(t, h, "/cache", &all))
	assert.Len(t, all, 2)

	var onlyAlerts []status.EntryInfo
	require.Equal(t, http.StatusOK, get(t, h, "/cache?domain=alerts", &onlyAlerts))
	require.Len(t, onlyAlerts, 1)
	assert.True(t, onlyAlerts[0].Stale)
	assert.Equal(t, alerts.Filter, onlyAlerts[0].Filter)

	var entry map[string]any
	target := "/cache/alerts/list?filter=" + url.QueryEscape(`{"severity": "critical"}`)
	require.Equal(t, http.StatusOK, get(t, h, target, &entry))
	assert.Equal(t, alerts.String(), entry["key"])
	assert.Len(t, entry["value"], 1)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/cache/devices/list", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/cache/alerts/list?filter=%7Bnope", nil))
}
