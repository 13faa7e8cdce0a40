package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// Config configures a Manager.
type Config struct {
	// Transport opens connections. Required.
	Transport transport.Transport

	// Credentials mints a token for every attempt. Required.
	Credentials credential.Provider

	// Backoff bounds the reconnect delays.
	Backoff BackoffConfig

	// Clock drives reconnect timers. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives state transitions for protocol capture.
	ProtocolLogger log.Logger
}

// Invalidator is implemented by credential providers that cache tokens,
// such as *credential.Cached. The manager invalidates the provider when
// the server rejects a token so the next attempt mints a fresh one.
type Invalidator interface {
	Invalidate()
}

// Manager maintains one reconnecting connection.
type Manager struct {
	transport   transport.Transport
	credentials credential.Provider
	backoff     *Backoff
	clock       clock.Clock
	logger      *slog.Logger
	plog        log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	err        error
	wanted     bool
	inFlight   bool
	closed     bool
	generation uint64
	conn       transport.Conn
	timer      *clock.Timer
	timerSeq   uint64
	nextID     uint64
	watchers   []watcher
	onMessage  []messageHook
	onRetry    func(attempt int, delay time.Duration)
	pending    []notice

	// deliverMu is held by the goroutine draining pending.
	deliverMu sync.Mutex
}

type watcher struct {
	id uint64
	fn func(old, new Snapshot)
}

type messageHook struct {
	id uint64
	fn func(transport.Message)
}

// notice is a queued notification, delivered outside the lock.
type notice struct {
	old, new Snapshot
	retry    bool
	attempt  int
	delay    time.Duration
}

// NewManager creates a manager in StateDisconnected.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		transport:   cfg.Transport,
		credentials: cfg.Credentials,
		backoff:     NewBackoffWithConfig(cfg.Backoff),
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("component", "connection"),
		plog:        log.OrNoop(cfg.ProtocolLogger),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateDisconnected,
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Err: m.err}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.Snapshot().State
}

// Backoff returns the manager's backoff calculator.
func (m *Manager) Backoff() *Backoff { return m.backoff }

// Watch registers fn for state changes. fn is called after the state is
// updated, in order, and only when the snapshot changed. The returned
// function removes the registration.
func (m *Manager) Watch(fn func(old, new Snapshot)) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.watchers = append(m.watchers, watcher{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range m.watchers {
			if w.id == id {
				m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
				return
			}
		}
	}
}

// OnMessage registers fn for every inbound frame of the current
// connection. The returned function removes the registration.
func (m *Manager) OnMessage(fn func(transport.Message)) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.onMessage = append(m.onMessage, messageHook{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, h := range m.onMessage {
			if h.id == id {
				m.onMessage = append(m.onMessage[:i:i], m.onMessage[i+1:]...)
				return
			}
		}
	}
}

// OnReconnecting sets a callback for scheduled reconnects.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRetry = fn
}

// Connect starts a connection attempt unless one is in flight or the
// wire is already up. It returns an error matching ErrNotAuthenticated
// if no credential could be minted; transport failures are reported
// only as state.
func (m *Manager) Connect(ctx context.Context) error {
	gen, ok, err := m.beginConnect()
	m.flush()
	if err != nil || !ok {
		return err
	}
	return m.finishConnect(ctx, gen)
}

// Disconnect cancels any pending reconnect, discards in-flight attempts
// and closes the transport. It is idempotent.
func (m *Manager) Disconnect() {
	conn := m.stop("disconnect")
	if conn != nil {
		conn.Close()
	}
	m.flush()
}

// Reconnect tears down the current connection, if any, and starts a
// fresh attempt with a reset backoff.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	conn := m.teardownLocked("reconnect")
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	m.backoff.Reset()
	return m.Connect(ctx)
}

// Close disconnects and makes every later Connect fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.Disconnect()
}

// Send writes a frame on the open connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

// beginConnect synchronously claims the attempt.
func (m *Manager) beginConnect() (gen uint64, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, false, ErrManagerClosed
	}
	m.wanted = true
	if m.inFlight || m.state == StateConnecting || m.state == StateConnected {
		return 0, false, nil
	}

	m.inFlight = true
	m.generation++
	m.stopTimerLocked()
	m.setStateLocked(StateConnecting, nil, "connect")
	return m.generation, true, nil
}

// finishConnect mints a credential and opens the transport for gen.
func (m *Manager) finishConnect(ctx context.Context, gen uint64) error {
	token, err := m.credentials.Token(ctx)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale credential result", "generation", gen)
		return nil
	}
	m.inFlight = false
	if err != nil {
		authErr := &AuthError{Err: err}
		m.setStateLocked(StateError, authErr, "credential")
		m.mu.Unlock()
		m.logger.Warn("credential unavailable, not retrying", "error", err)
		m.plog.Log(log.Event{
			Timestamp: m.clock.Now(),
			Direction: log.DirectionNone,
			Layer:     log.LayerSession,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerSession,
				Kind:    log.ErrorNotAuthenticated,
				Message: err.Error(),
			},
		})
		m.flush()
		return authErr
	}
	m.mu.Unlock()

	a := &attempt{m: m, gen: gen, ready: make(chan struct{})}
	conn, err := m.transport.Open(token, a)

	m.mu.Lock()
	switch {
	case gen != m.generation:
		m.mu.Unlock()
		close(a.ready)
		if conn != nil {
			conn.Close()
		}
		return nil
	case err != nil:
		m.invalidateRejectedLocked(err)
		m.failLocked(&TransportError{Op: "open", Err: err})
	default:
		m.conn = conn
		m.logger.Debug("transport opening", "transport", m.transport.Name(), "conn_id", conn.ID())
	}
	m.mu.Unlock()
	close(a.ready)
	m.flush()
	return nil
}

// stop clears wanted and tears down without flushing notifications.
// The caller closes the returned connection.
func (m *Manager) stop(reason string) transport.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wanted = false
	return m.teardownLocked(reason)
}

func (m *Manager) teardownLocked(reason string) transport.Conn {
	m.generation++
	m.inFlight = false
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected, nil, reason)
	return conn
}

// failLocked records a failed or ended connection and schedules a retry.
func (m *Manager) failLocked(err error) {
	m.conn = nil
	if err != nil {
		m.setStateLocked(StateError, err, "transport")
	} else {
		m.setStateLocked(StateDisconnected, nil, "closed by server")
	}
	m.scheduleLocked()
}

// invalidateRejectedLocked drops a cached credential the server refused.
func (m *Manager) invalidateRejectedLocked(err error) {
	var se *transport.StatusError
	if !errors.As(err, &se) || !se.Unauthorized() {
		return
	}
	if inv, ok := m.credentials.(Invalidator); ok {
		inv.Invalidate()
		m.logger.Info("credential rejected, invalidated", "status", se.Code)
	}
}

func (m *Manager) scheduleLocked() {
	if !m.wanted || m.timer != nil || m.closed {
		return
	}
	delay := m.backoff.Next()
	attempt := m.backoff.Attempts()

	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(seq) })
	m.pending = append(m.pending, notice{retry: true, attempt: attempt, delay: delay})
	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) fire(seq uint64) {
	m.mu.Lock()
	if m.timer == nil || seq != m.timerSeq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	wanted := m.wanted
	m.mu.Unlock()

	if !wanted {
		return
	}
	if err := m.Connect(m.ctx); err != nil {
		m.logger.Warn("reconnect failed", "error", err)
	}
}

// setStateLocked applies a transition and queues a notification if the
// snapshot changed.
func (m *Manager) setStateLocked(next State, err error, reason string) {
	if next != m.state && !m.state.CanTransition(next) {
		m.logger.Warn("ignoring illegal transition", "from", m.state, "to", next, "reason", reason)
		return
	}
	old := Snapshot{State: m.state, Err: m.err}
	m.state, m.err = next, err
	cur := Snapshot{State: next, Err: err}
	if old == cur {
		return
	}

	m.pending = append(m.pending, notice{old: old, new: cur})
	m.logger.Debug("connection state", "from", old.State, "to", next, "reason", reason)

	var connID string
	if m.conn != nil {
		connID = m.conn.ID()
	}
	m.plog.Log(log.Event{
		Timestamp:    m.clock.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		Transport:    m.transport.Name(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.State.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

// flush delivers queued notifications. Only one goroutine delivers at a
// time; a call that finds delivery in progress leaves its notices to the
// active deliverer, which rechecks before giving up the role.
func (m *Manager) flush() {
	for {
		if !m.deliverMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.pending
			m.pending = nil
			watchers := append([]watcher(nil), m.watchers...)
			onRetry := m.onRetry
			m.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, n := range batch {
				if n.retry {
					if onRetry != nil {
						onRetry(n.attempt, n.delay)
					}
					continue
				}
				for _, w := range watchers {
					w.fn(n.old, n.new)
				}
			}
		}
		m.deliverMu.Unlock()

		m.mu.Lock()
		more := len(m.pending) > 0
		m.mu.Unlock()
		if !more {
			return
		}
	}
}

// attempt is the transport.Handler for one generation.
type attempt struct {
	m     *Manager
	gen   uint64
	ready chan struct{}
}

func (a *attempt) OnOpen() {
	<-a.ready
	m := a.m
	m.mu.Lock()
	if a.gen != m.generation || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.backoff.Reset()
	m.setStateLocked(StateConnected, nil, "open")
	m.mu.Unlock()
	m.logger.Info("connected", "transport", m.transport.Name())
	m.flush()
}

func (a *attempt) OnMessage(msg transport.Message) {
	<-a.ready
	m := a.m
	m.mu.Lock()
	if a.gen != m.generation || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	hooks := append([]messageHook(nil), m.onMessage...)
	m.mu.Unlock()

	for _, h := range hooks {
		h.fn(msg)
	}
}

func (a *attempt) OnClose(err error) {
	<-a.ready
	m := a.m
	m.mu.Lock()
	if a.gen != m.generation {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.invalidateRejectedLocked(err)
		m.failLocked(&TransportError{Op: "read", Err: err})
	} else {
		m.failLocked(nil)
	}
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("connection lost", "error", err)
	} else {
		m.logger.Info("connection closed by server")
	}
	m.flush()
}
