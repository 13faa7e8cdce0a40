package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/transport"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockTransport records opens; tests drive the handlers directly.
type mockTransport struct {
	name string

	mu    sync.Mutex
	conns []*mockConn
}

type mockConn struct {
	id      string
	handler transport.Handler

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (m *mockTransport) Name() string { return m.name }

func (m *mockTransport) Open(token string, h transport.Handler) (transport.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &mockConn{id: fmt.Sprintf("conn-%d", len(m.conns)+1), handler: h}
	m.conns = append(m.conns, c)
	return c, nil
}

func (m *mockTransport) opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *mockTransport) last(t *testing.T) *mockConn {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.conns, "transport never opened")
	return m.conns[len(m.conns)-1]
}

func (c *mockConn) ID() string { return c.id }

func (c *mockConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) controls(t *testing.T) []event.Control {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Control, 0, len(c.sent))
	for _, frame := range c.sent {
		ctl, err := event.DecodeControl(frame)
		require.NoError(t, err)
		out = append(out, ctl)
	}
	return out
}

// push delivers p to the connection as a JSON frame.
func (c *mockConn) push(t *testing.T, p event.Payload) {
	t.Helper()
	frame, err := event.Encode(event.New(p, t0))
	require.NoError(t, err)
	c.handler.OnMessage(transport.Message{Data: frame})
}

// countingFetcher counts fetches per key.
type countingFetcher struct {
	mu    sync.Mutex
	calls map[cache.Key]int
}

func (f *countingFetcher) Fetch(_ context.Context, key cache.Key) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[cache.Key]int)
	}
	f.calls[key]++
	switch key.Domain {
	case event.DomainAlerts:
		return []event.Alert{}, nil
	case event.DomainDevices:
		return []event.Device{}, nil
	}
	return event.Summary{}, nil
}

func (f *countingFetcher) count(key cache.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *countingFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fixture struct {
	svc       *Service
	transport *mockTransport
	clock     *clock.FakeClock
	fetcher   *countingFetcher
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		transport: &mockTransport{name: transport.NameWebSocket},
		clock:     clock.Fake(t0),
		fetcher:   &countingFetcher{},
	}
	cfg := DefaultConfig()
	cfg.Transport = f.transport
	cfg.Credentials = credential.Static("token")
	cfg.Fetcher = f.fetcher
	cfg.Clock = f.clock
	for _, m := range mutate {
		m(&cfg)
	}
	if tr, ok := cfg.Transport.(*mockTransport); ok {
		f.transport = tr
	}

	svc, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

// connect acquires a session reference and completes the transport open.
func (f *fixture) connect(t *testing.T) *mockConn {
	t.Helper()
	require.NoError(t, f.svc.AcquireSession(context.Background()))
	c := f.transport.last(t)
	c.handler.OnOpen()
	require.True(t, f.svc.ConnectionState().Connected())
	return c
}
