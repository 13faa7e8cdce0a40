package subscription_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

type sender struct {
	mu     sync.Mutex
	frames []string
	fail   error
}

func (s *sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	c, err := event.DecodeControl(data)
	if err != nil {
		return err
	}
	name := c.Name()
	for _, id := range c.IDs {
		name += "#" + id
	}
	s.frames = append(s.frames, name)
	return nil
}

func (s *sender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

var alerts = subscription.Room{Domain: event.DomainAlerts}

func TestRoomsDeduplicateControlMessages(t *testing.T) {
	s := &sender{}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})
	rooms.SetConnected(true)

	leaves := make([]func(), 5)
	for i := range leaves {
		leaves[i] = rooms.Join(alerts)
	}
	assert.Equal(t, []string{"subscribe:alerts"}, s.sent())
	assert.Equal(t, 5, rooms.Interest(alerts))
	assert.True(t, rooms.Subscribed(alerts))

	for _, leave := range leaves[:4] {
		leave()
		leave()
	}
	assert.Equal(t, []string{"subscribe:alerts"}, s.sent())

	leaves[4]()
	assert.Equal(t, []string{"subscribe:alerts", "unsubscribe:alerts"}, s.sent())
	assert.Equal(t, 0, rooms.Interest(alerts))
	assert.Empty(t, rooms.Active())
}

func TestRoomsEntityRooms(t *testing.T) {
	s := &sender{}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})
	rooms.SetConnected(true)

	d1 := subscription.Room{Domain: event.DomainDevices, EntityID: "d-1"}
	d2 := subscription.Room{Domain: event.DomainDevices, EntityID: "d-2"}
	rooms.Join(d1)
	rooms.Join(d2)
	rooms.Join(d1)

	assert.Equal(t, "devices:d-1", d1.String())
	assert.Equal(t, []string{"subscribe:devices#d-1", "subscribe:devices#d-2"}, s.sent())
	assert.Equal(t, []subscription.Room{d1, d2}, rooms.Active())
}

func TestRoomsJoinWhileDisconnected(t *testing.T) {
	s := &sender{}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})

	leave := rooms.Join(alerts)
	rooms.Join(alerts)
	assert.Empty(t, s.sent())
	assert.False(t, rooms.Subscribed(alerts))

	rooms.SetConnected(true)
	assert.Equal(t, []string{"subscribe:alerts"}, s.sent())

	leave()
	assert.Len(t, s.sent(), 1)
}

func TestRoomsResubscribeAfterReconnect(t *testing.T) {
	s := &sender{}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})
	rooms.SetConnected(true)
	rooms.Join(alerts)
	leave := rooms.Join(subscription.Room{Domain: event.DomainDevices})

	rooms.SetConnected(false)
	assert.False(t, rooms.Subscribed(alerts))

	// Leaving while disconnected sends nothing.
	leave()

	rooms.SetConnected(true)
	assert.Equal(t, []string{
		"subscribe:alerts",
		"subscribe:devices",
		"subscribe:alerts",
	}, s.sent())
}

func TestRoomsSendFailureRetriedOnConnect(t *testing.T) {
	s := &sender{fail: errors.New("not connected")}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})
	rooms.SetConnected(true)

	rooms.Join(alerts)
	assert.False(t, rooms.Subscribed(alerts))

	s.mu.Lock()
	s.fail = nil
	s.mu.Unlock()
	rooms.SetConnected(false)
	rooms.SetConnected(true)
	assert.Equal(t, []string{"subscribe:alerts"}, s.sent())
}

func TestRoomsClear(t *testing.T) {
	s := &sender{}
	rooms := subscription.NewRooms(subscription.RoomsConfig{Sender: s})
	old := rooms.Join(alerts)

	rooms.Clear()
	assert.Equal(t, 0, rooms.Interest(alerts))

	rooms.Join(alerts)
	old()
	assert.Equal(t, 1, rooms.Interest(alerts), "stale leave must not drop new interest")
}

func TestRoomsWithoutSender(t *testing.T) {
	rooms := subscription.NewRooms(subscription.RoomsConfig{})
	rooms.SetConnected(true)
	leave := rooms.Join(alerts)
	assert.Equal(t, 1, rooms.Interest(alerts))
	assert.False(t, rooms.Subscribed(alerts))
	leave()
}
