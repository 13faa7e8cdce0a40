package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// Clearer drops state that must not outlive the session, such as event
// handlers and room interest.
type Clearer interface {
	Clear()
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Linger keeps the connection open this long after the last release.
	// An acquire within the window cancels the disconnect. Zero
	// disconnects immediately.
	Linger time.Duration

	// Clearers run when the count reaches zero and the connection closes.
	Clearers []Clearer

	// Clock drives the linger timer. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

// Session reference counts consumers of a Manager. The first Acquire
// connects and the last Release disconnects.
type Session struct {
	manager  *Manager
	linger   time.Duration
	clearers []Clearer
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	count    int
	timer    *clock.Timer
	timerSeq uint64
}

// NewSession creates a session over m with a zero count.
func NewSession(m *Manager, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		manager:  m,
		linger:   cfg.Linger,
		clearers: cfg.Clearers,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "session"),
	}
}

// Acquire adds a reference. The first reference starts a connection
// attempt and returns its credential error, if any; the reference is held
// either way and must be released.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	s.count++
	var (
		gen uint64
		ok  bool
		err error
	)
	if s.count == 1 {
		if s.stopLingerLocked() {
			s.logger.Debug("release cancelled by acquire")
		}
		gen, ok, err = s.manager.beginConnect()
	}
	s.mu.Unlock()
	s.manager.flush()

	if err != nil || !ok {
		return err
	}
	return s.manager.finishConnect(ctx, gen)
}

// Release drops a reference. At zero the connection closes, after the
// linger window if one is configured. Release panics with
// ErrReleaseUnderflow if there is no reference to drop.
func (s *Session) Release() {
	s.mu.Lock()
	if s.count == 0 {
		s.mu.Unlock()
		panic(ErrReleaseUnderflow)
	}
	s.count--
	if s.count > 0 {
		s.mu.Unlock()
		return
	}

	if s.linger > 0 {
		s.timerSeq++
		seq := s.timerSeq
		s.timer = s.clock.AfterFunc(s.linger, func() { s.expire(seq) })
		s.mu.Unlock()
		return
	}

	conn := s.endLocked()
	s.mu.Unlock()
	s.finish(conn)
}

// Hold acquires a reference and returns a release function that is safe
// to call more than once.
func (s *Session) Hold(ctx context.Context) (release func(), err error) {
	err = s.Acquire(ctx)
	var once sync.Once
	return func() { once.Do(s.Release) }, err
}

// Count returns the number of held references.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Lingering reports whether a delayed disconnect is pending.
func (s *Session) Lingering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Session) expire(seq uint64) {
	s.mu.Lock()
	if s.timer == nil || seq != s.timerSeq || s.count > 0 {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	conn := s.endLocked()
	s.mu.Unlock()
	s.finish(conn)
}

// endLocked stops the manager and clears registrations while s.mu is
// held, so a concurrent Acquire observes either the old session or a
// fully reset one.
func (s *Session) endLocked() transport.Conn {
	conn := s.manager.stop("released")
	for _, c := range s.clearers {
		c.Clear()
	}
	s.logger.Debug("session ended")
	return conn
}

func (s *Session) finish(conn transport.Conn) {
	if conn != nil {
		conn.Close()
	}
	s.manager.flush()
}

func (s *Session) stopLingerLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}
