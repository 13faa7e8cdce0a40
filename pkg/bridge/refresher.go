package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
)

// DefaultRefreshInterval is the analytics refresh period.
const DefaultRefreshInterval = 5 * time.Minute

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	Store *cache.Store

	// Domain whose cached keys are refreshed (default analytics).
	Domain event.Domain

	// Interval between refreshes (default 5m).
	Interval time.Duration

	// Clock drives the ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

// Refresher periodically refetches one domain while connected. Pushed
// summaries can be missed or skipped by the server; the refresh bounds
// how old a summary gets.
type Refresher struct {
	store    *cache.Store
	domain   event.Domain
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	ticker *clock.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewRefresher creates a stopped Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.Domain == "" {
		cfg.Domain = event.DomainAnalytics
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Refresher{
		store:    cfg.Store,
		domain:   cfg.Domain,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   orDiscard(cfg.Logger).With("component", "refresher", "domain", cfg.Domain),
	}
}

// OnStateChange is a connection.Manager watcher: it starts on connect
// and stops on any other state.
func (r *Refresher) OnStateChange(old, new connection.Snapshot) {
	if new.Connected() {
		r.Start()
	} else if old.Connected() {
		r.Stop()
	}
}

// Start begins ticking. It is a no-op if already running.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker != nil {
		return
	}
	r.ticker = r.clock.NewTicker(r.interval)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.ticker, r.stop, r.done)
}

// Stop halts ticking and waits for an in-progress refresh.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.ticker == nil {
		r.mu.Unlock()
		return
	}
	r.ticker.Stop()
	close(r.stop)
	done := r.done
	r.ticker, r.stop, r.done = nil, nil, nil
	r.mu.Unlock()
	<-done
}

// Running reports whether the ticker is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticker != nil
}

func (r *Refresher) loop(t *clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.refresh(stop)
		}
	}
}

func (r *Refresher) refresh(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, key := range r.store.Keys(r.domain) {
		if _, err := r.store.Refetch(ctx, key); err != nil {
			r.logger.Warn("refresh failed", "key", key.String(), "error", err)
		}
	}
}
