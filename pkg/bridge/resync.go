package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
)

// Resync defaults.
const (
	DefaultResyncTimeout     = 30 * time.Second
	DefaultResyncConcurrency = 4
)

// ResyncConfig configures Resync.
type ResyncConfig struct {
	Store *cache.Store

	// Domains whose cached keys are refetched.
	Domains []event.Domain

	// Timeout bounds one resync pass (default 30s).
	Timeout time.Duration

	// Concurrency bounds parallel refetches (default 4).
	Concurrency int

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

// Resync refetches cached keys after a reconnect, since events pushed
// while the connection was down are lost.
type Resync struct {
	store       *cache.Store
	domains     []event.Domain
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	connected bool // seen a connection since creation
}

// NewResync creates a Resync.
func NewResync(cfg ResyncConfig) *Resync {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResyncTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultResyncConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resync{
		store:       cfg.Store,
		domains:     cfg.Domains,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		logger:      orDiscard(cfg.Logger).With("component", "resync"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnStateChange is a connection.Manager watcher. Every connect after the
// first starts a background resync.
func (r *Resync) OnStateChange(old, new connection.Snapshot) {
	if new.State != connection.StateConnected {
		return
	}
	r.mu.Lock()
	first := !r.connected
	r.connected = true
	r.mu.Unlock()
	if first {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
		defer cancel()
		if err := r.Run(ctx); err != nil {
			r.logger.Warn("resync incomplete", "error", err)
		}
	}()
}

// Run refetches every cached key in the configured domains once.
// Failures do not stop the other refetches and are joined in the result.
func (r *Resync) Run(ctx context.Context) error {
	keys := r.store.Keys(r.domains...)
	r.logger.Info("resyncing cache", "keys", len(keys))

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := r.store.Refetch(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// Wait blocks until background resyncs finish.
func (r *Resync) Wait() { r.wg.Wait() }

// Close cancels background resyncs and waits for them.
func (r *Resync) Close() {
	r.cancel()
	r.wg.Wait()
}
