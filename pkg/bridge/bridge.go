package bridge

import (
	"log/slog"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// Bridge merges one domain's events into the cache.
type Bridge interface {
	// Domain is the cache domain the bridge writes.
	Domain() event.Domain

	// Register subscribes the bridge's handlers and returns a function
	// removing them.
	Register(r *subscription.Registry) (unregister func())
}

// Compile-time interface satisfaction checks.
var (
	_ Bridge = (*Alerts)(nil)
	_ Bridge = (*Devices)(nil)
	_ Bridge = (*Analytics)(nil)
)

// All returns the alert, device and analytics bridges over store.
func All(store *cache.Store, logger *slog.Logger) []Bridge {
	return []Bridge{
		NewAlerts(store, logger),
		NewDevices(store, DevicesConfig{Logger: logger}),
		NewAnalytics(store, logger),
	}
}

// RegisterAll registers every bridge and returns one function removing
// them all.
func RegisterAll(r *subscription.Registry, bridges ...Bridge) (unregister func()) {
	undo := make([]func(), 0, len(bridges))
	for _, b := range bridges {
		undo = append(undo, b.Register(r))
	}
	return func() {
		for _, u := range undo {
			u()
		}
	}
}

// Domains returns the domains written by bridges.
func Domains(bridges ...Bridge) []event.Domain {
	out := make([]event.Domain, 0, len(bridges))
	for _, b := range bridges {
		out = append(out, b.Domain())
	}
	return out
}

func chain(fns ...func()) func() {
	return func() {
		for _, fn := range fns {
			fn()
		}
	}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
