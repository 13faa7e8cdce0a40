package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/subscription"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// Service is the live sync layer of one client.
type Service struct {
	logger *slog.Logger
	plog   log.Logger

	manager   *connection.Manager
	session   *connection.Session
	events    *subscription.Registry
	merges    *subscription.Registry
	rooms     *subscription.Rooms
	store     *cache.Store
	bridges   []bridge.Bridge
	resync    *bridge.Resync
	refresher *bridge.Refresher

	mu    sync.Mutex
	state ServiceState
	undo  []func()
}

// New creates a service. Nothing connects until the first AcquireSession.
func New(cfg Config) (*Service, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%w: credentials are required", ErrInvalidConfig)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.ResyncDomains) == 0 {
		cfg.ResyncDomains = DefaultConfig().ResyncDomains
	}

	s := &Service{
		logger: cfg.Logger.With("component", "service"),
		plog:   log.OrNoop(cfg.ProtocolLogger),
	}

	s.manager = connection.NewManager(connection.Config{
		Transport:      cfg.Transport,
		Credentials:    cfg.Credentials,
		Backoff:        cfg.Backoff,
		Clock:          cfg.Clock,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})

	s.events = subscription.NewRegistry(subscription.Config{
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})
	s.merges = subscription.NewRegistry(subscription.Config{Logger: cfg.Logger})

	var sender subscription.Sender
	if cfg.Transport.Name() != transport.NameEventStream {
		sender = s.manager
	}
	s.rooms = subscription.NewRooms(subscription.RoomsConfig{
		Sender:         sender,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})

	s.session = connection.NewSession(s.manager, connection.SessionConfig{
		Linger:   cfg.Linger,
		Clearers: []connection.Clearer{s.events, s.rooms},
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	})

	s.store = cache.NewStore(cache.Config{
		Fetcher: cfg.Fetcher,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
	})
	s.bridges = []bridge.Bridge{
		bridge.NewAlerts(s.store, cfg.Logger),
		bridge.NewDevices(s.store, bridge.DevicesConfig{HistoryLimit: cfg.HistoryLimit, Logger: cfg.Logger}),
		bridge.NewAnalytics(s.store, cfg.Logger),
	}

	if cfg.Fetcher != nil {
		s.resync = bridge.NewResync(bridge.ResyncConfig{
			Store:   s.store,
			Domains: cfg.ResyncDomains,
			Logger:  cfg.Logger,
		})
		if cfg.AnalyticsRefresh >= 0 {
			s.refresher = bridge.NewRefresher(bridge.RefresherConfig{
				Store:    s.store,
				Interval: cfg.AnalyticsRefresh,
				Clock:    cfg.Clock,
				Logger:   cfg.Logger,
			})
		}
	}
	return s, nil
}

// Start wires the event flow. It does not connect.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	s.undo = append(s.undo,
		bridge.RegisterAll(s.merges, s.bridges...),
		s.manager.OnMessage(s.handleMessage),
		s.manager.Watch(s.onStateChange),
	)
	if s.resync != nil {
		s.undo = append(s.undo, s.manager.Watch(s.resync.OnStateChange))
	}
	if s.refresher != nil {
		s.undo = append(s.undo, s.manager.Watch(s.refresher.OnStateChange))
	}
	s.manager.OnReconnecting(func(attempt int, delay time.Duration) {
		s.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	})

	s.state = StateRunning
	s.logger.Info("service started", "bridges", bridge.Domains(s.bridges...))
	return nil
}

// Close disconnects and tears the event flow down. The service cannot
// be restarted.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopped
	undo := s.undo
	s.undo = nil
	s.mu.Unlock()

	s.manager.Close()
	for _, u := range undo {
		u()
	}
	if s.resync != nil {
		s.resync.Close()
	}
	if s.refresher != nil {
		s.refresher.Stop()
	}
	s.events.Clear()
	s.rooms.Clear()

	s.logger.Info("service stopped")
	return nil
}

// State returns the current service state.
func (s *Service) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) running() error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	return nil
}

// AcquireSession adds a session reference. The first reference connects.
// A credential failure is returned with the reference still held.
func (s *Service) AcquireSession(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.session.Acquire(ctx)
}

// ReleaseSession drops a session reference. The last release disconnects
// and clears every subscription and room interest.
func (s *Service) ReleaseSession() {
	s.session.Release()
}

// Hold acquires a session reference and returns its release function.
func (s *Service) Hold(ctx context.Context) (release func(), err error) {
	if err := s.running(); err != nil {
		return func() {}, err
	}
	return s.session.Hold(ctx)
}

// SessionCount returns the number of held session references.
func (s *Service) SessionCount() int { return s.session.Count() }

// Subscribe registers h for events of type t.
func (s *Service) Subscribe(t event.Type, h subscription.Handler) (unsubscribe func()) {
	return s.events.Subscribe(t, h)
}

// Events returns the consumer registry, for typed subscriptions with
// subscription.On.
func (s *Service) Events() *subscription.Registry { return s.events }

// ConnectionState returns the current connection state.
func (s *Service) ConnectionState() connection.Snapshot { return s.manager.Snapshot() }

// OnConnectionStateChange registers fn for every connection state change.
func (s *Service) OnConnectionStateChange(fn func(old, new connection.Snapshot)) (cancel func()) {
	return s.manager.Watch(fn)
}

// JoinRoom registers interest in a server room. On a receive-only
// transport interest is tracked but nothing is sent.
func (s *Service) JoinRoom(room subscription.Room) (leave func()) {
	return s.rooms.Join(room)
}

// Rooms returns the room tracker.
func (s *Service) Rooms() *subscription.Rooms { return s.rooms }

// Reconnect drops the current connection and connects again immediately.
func (s *Service) Reconnect(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.manager.Reconnect(ctx)
}

// Resync refetches the resync domains now. It returns ErrNotStarted on
// a closed service and cache.ErrNoFetcher without a fetcher.
func (s *Service) Resync(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	if s.resync == nil {
		return cache.ErrNoFetcher
	}
	return s.resync.Run(ctx)
}

// Cache returns the store the bridges write.
func (s *Service) Cache() *cache.Store { return s.store }

// Manager returns the connection manager.
func (s *Service) Manager() *connection.Manager { return s.manager }

func (s *Service) onStateChange(old, new connection.Snapshot) {
	s.rooms.SetConnected(new.Connected())

	switch {
	case new.State == connection.StateError && errors.Is(new.Err, connection.ErrNotAuthenticated):
		s.logger.Warn("connection not authenticated", "error", new.Err)
	case new.State == connection.StateError:
		s.logger.Warn("connection lost", "error", new.Err)
	default:
		s.logger.Info("connection state", "from", old.State, "to", new.State)
	}
}
