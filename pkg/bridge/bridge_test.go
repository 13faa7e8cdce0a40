package bridge_test

import (
	"time"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(f cache.Fetcher) (*cache.Store, *clock.FakeClock) {
	clk := clock.Fake(t0)
	return cache.NewStore(cache.Config{Fetcher: f, Clock: clk}), clk
}

func dispatch(r *subscription.Registry, p event.Payload) {
	r.Dispatch(event.New(p, t0))
}

func alert(id string, sev event.Severity, device string) event.Alert {
	return event.Alert{
		ID:        id,
		DeviceID:  device,
		Severity:  sev,
		Status:    event.AlertStatusActive,
		Message:   "temperature above threshold",
		CreatedAt: t0,
	}
}

func ptr[T any](v T) *T { return &v }
