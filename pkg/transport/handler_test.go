package transport_test

import (
	"testing"
	"time"

	"github.com/sensorwatch/livesync/pkg/transport"
)

// recorder is a transport.Handler that forwards callbacks to channels.
type recorder struct {
	opened   chan struct{}
	messages chan transport.Message
	closed   chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan transport.Message, 16),
		closed:   make(chan error, 1),
	}
}

func (r *recorder) OnOpen()                         { r.opened <- struct{}{} }
func (r *recorder) OnMessage(msg transport.Message) { r.messages <- msg }
func (r *recorder) OnClose(err error)               { r.closed <- err }

func (r *recorder) waitOpen(t *testing.T) {
	t.Helper()
	select {
	case <-r.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnOpen")
	}
}

func (r *recorder) waitMessage(t *testing.T) transport.Message {
	t.Helper()
	select {
	case msg := <-r.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnMessage")
		return transport.Message{}
	}
}

func (r *recorder) waitClose(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnClose")
		return nil
	}
}

func (r *recorder) assertNoClose(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case err := <-r.closed:
		t.Fatalf("unexpected OnClose(%v)", err)
	case <-time.After(wait):
	}
}
