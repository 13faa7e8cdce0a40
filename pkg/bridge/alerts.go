package bridge

import (
	"log/slog"
	"reflect"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// Alerts merges alert events into alert lists and details.
type Alerts struct {
	store  *cache.Store
	logger *slog.Logger
}

// NewAlerts creates the alert bridge.
func NewAlerts(store *cache.Store, logger *slog.Logger) *Alerts {
	return &Alerts{store: store, logger: orDiscard(logger).With("bridge", event.DomainAlerts)}
}

// Domain returns event.DomainAlerts.
func (b *Alerts) Domain() event.Domain { return event.DomainAlerts }

// Register subscribes to alert.created, alert.resolved and alert.removed.
func (b *Alerts) Register(r *subscription.Registry) func() {
	return chain(
		subscription.On(r, func(p event.AlertCreated, _ event.Envelope) { b.Created(p) }),
		subscription.On(r, func(p event.AlertResolved, _ event.Envelope) { b.Resolved(p) }),
		subscription.On(r, func(p event.AlertRemoved, _ event.Envelope) { b.Removed(p) }),
	)
}

// Created prepends the alert into every cached list whose filter accepts
// it and replaces a cached detail entry. Uncached details stay uncached.
func (b *Alerts) Created(p event.AlertCreated) {
	a := p.Alert
	if a.Status == "" {
		a.Status = event.AlertStatusActive
	}

	for _, key := range keysOf(b.store, event.DomainAlerts, SubKeyList) {
		var f AlertFilter
		if err := key.DecodeFilter(&f); err != nil || !f.Accepts(a) {
			continue
		}
		cache.UpdateAs(b.store, key, func(list []event.Alert, ok bool) ([]event.Alert, bool) {
			if !ok {
				return nil, false
			}
			return PrependAlert(list, a)
		})
	}

	cache.UpdateAs(b.store, AlertDetailKey(a.ID), func(cur event.Alert, ok bool) (event.Alert, bool) {
		if !ok {
			return cur, false
		}
		return a, !reflect.DeepEqual(cur, a)
	})
	b.logger.Debug("alert created", "alert_id", a.ID)
}

// Resolved updates the alert in lists that still accept it, removes it
// from the others and updates a cached detail entry.
func (b *Alerts) Resolved(p event.AlertResolved) {
	for _, key := range keysOf(b.store, event.DomainAlerts, SubKeyList) {
		var f AlertFilter
		if err := key.DecodeFilter(&f); err != nil {
			continue
		}
		cache.UpdateAs(b.store, key, func(list []event.Alert, ok bool) ([]event.Alert, bool) {
			if !ok {
				return nil, false
			}
			return ResolveInList(list, p, f)
		})
	}

	cache.UpdateAs(b.store, AlertDetailKey(p.AlertID), func(cur event.Alert, ok bool) (event.Alert, bool) {
		if !ok {
			return cur, false
		}
		return ResolveAlert(cur, p)
	})
	b.logger.Debug("alert resolved", "alert_id", p.AlertID)
}

// Removed drops the alert from every list and its detail entry.
func (b *Alerts) Removed(p event.AlertRemoved) {
	for _, key := range keysOf(b.store, event.DomainAlerts, SubKeyList) {
		cache.UpdateAs(b.store, key, func(list []event.Alert, ok bool) ([]event.Alert, bool) {
			if !ok {
				return nil, false
			}
			return RemoveAlert(list, p.AlertID)
		})
	}
	b.store.Delete(AlertDetailKey(p.AlertID))
	b.logger.Debug("alert removed", "alert_id", p.AlertID)
}

// PrependAlert returns list with a in front, unless an alert with the
// same ID is already present.
func PrependAlert(list []event.Alert, a event.Alert) ([]event.Alert, bool) {
	if indexAlert(list, a.ID) >= 0 {
		return list, false
	}
	out := make([]event.Alert, 0, len(list)+1)
	out = append(out, a)
	return append(out, list...), true
}

// RemoveAlert returns list without the alert with id.
func RemoveAlert(list []event.Alert, id string) ([]event.Alert, bool) {
	i := indexAlert(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]event.Alert, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// ResolveAlert marks a resolved at the event's time.
func ResolveAlert(a event.Alert, p event.AlertResolved) (event.Alert, bool) {
	if a.Status == event.AlertStatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Equal(p.ResolvedAt) {
		return a, false
	}
	at := p.ResolvedAt
	a.Status = event.AlertStatusResolved
	a.ResolvedAt = &at
	return a, true
}

// ResolveInList resolves the alert in place if f still accepts it and
// removes it otherwise.
func ResolveInList(list []event.Alert, p event.AlertResolved, f AlertFilter) ([]event.Alert, bool) {
	i := indexAlert(list, p.AlertID)
	if i < 0 {
		return list, false
	}
	resolved, changed := ResolveAlert(list[i], p)
	if !f.Accepts(resolved) {
		return RemoveAlert(list, p.AlertID)
	}
	if !changed {
		return list, false
	}
	out := append([]event.Alert(nil), list...)
	out[i] = resolved
	return out, true
}

func indexAlert(list []event.Alert, id string) int {
	for i, a := range list {
		if a.ID == id {
			return i
		}
	}
	return -1
}
