package connection_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// fakeTransport records every Open; tests drive the handlers.
type fakeTransport struct {
	mu    sync.Mutex
	opens []*fakeConn
}

type fakeConn struct {
	id      string
	token   string
	handler transport.Handler

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Open(token string, h transport.Handler) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{id: fmt.Sprintf("conn-%d", len(f.opens)+1), token: token, handler: h}
	f.opens = append(f.opens, c)
	return c, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeTransport) last(t *testing.T) *fakeConn {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opens) == 0 {
		t.Fatal("transport was never opened")
	}
	return f.opens[len(f.opens)-1]
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

// gate is a credential provider that blocks until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	token   string
	err     error
}

func newGate(token string) *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{}), token: token}
}

func (g *gate) Token(ctx context.Context) (string, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.token, g.err
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("credential mint never started")
	}
}

// recorder collects state changes.
type recorder struct {
	mu      sync.Mutex
	changes []string
}

func (r *recorder) watch(old, new connection.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, old.State.String()+"->"+new.State.String())
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...)
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(tr transport.Transport, creds credential.Provider) (*connection.Manager, *clock.FakeClock) {
	clk := clock.Fake(epoch)
	m := connection.NewManager(connection.Config{
		Transport:   tr,
		Credentials: creds,
		Backoff:     connection.BackoffConfig{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2},
		Clock:       clk,
	})
	return m, clk
}
