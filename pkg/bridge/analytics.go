package bridge

import (
	"log/slog"
	"reflect"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// Analytics replaces cached summaries with pushed ones.
type Analytics struct {
	store  *cache.Store
	logger *slog.Logger
}

// NewAnalytics creates the analytics bridge.
func NewAnalytics(store *cache.Store, logger *slog.Logger) *Analytics {
	return &Analytics{store: store, logger: orDiscard(logger).With("bridge", event.DomainAnalytics)}
}

// Domain returns event.DomainAnalytics.
func (b *Analytics) Domain() event.Domain { return event.DomainAnalytics }

// Register subscribes to analytics.summary.
func (b *Analytics) Register(r *subscription.Registry) func() {
	return subscription.On(r, func(p event.AnalyticsSummary, _ event.Envelope) { b.Summary(p) })
}

// Summary stores the summary for its period, seeding on a miss and
// clearing any stale mark.
func (b *Analytics) Summary(p event.AnalyticsSummary) {
	key := SummaryKey(p.Period)
	if e, ok := b.store.Get(key); ok && !e.Stale && reflect.DeepEqual(e.Value, p.Summary) {
		return
	}
	b.store.Set(key, p.Summary)
	b.logger.Debug("summary replaced", "period", p.Period)
}
