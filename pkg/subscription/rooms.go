package subscription

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/log"
)

// Room is a server-side subscription target: a whole domain, or one
// entity within it.
type Room struct {
	Domain   event.Domain
	EntityID string
}

// String returns "alerts" or "devices:d-1".
func (r Room) String() string {
	if r.EntityID == "" {
		return string(r.Domain)
	}
	return string(r.Domain) + ":" + r.EntityID
}

func (r Room) control(action event.Action) event.Control {
	c := event.Control{Action: action, Domain: r.Domain}
	if r.EntityID != "" {
		c.IDs = []string{r.EntityID}
	}
	return c
}

// Sender writes control frames to the live connection.
type Sender interface {
	Send(data []byte) error
}

// RoomsConfig configures Rooms.
type RoomsConfig struct {
	// Sender delivers control frames. Nil tracks interest without ever
	// sending, for receive-only transports.
	Sender Sender

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives control events.
	ProtocolLogger log.Logger
}

// Rooms reference counts local interest in server rooms.
type Rooms struct {
	sender Sender
	logger *slog.Logger
	plog   log.Logger

	mu        sync.Mutex
	interest  map[Room]int
	sent      map[Room]bool
	connected bool
	epoch     uint64
}

// NewRooms creates an empty room tracker in the disconnected state.
func NewRooms(cfg RoomsConfig) *Rooms {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Rooms{
		sender:   cfg.Sender,
		logger:   cfg.Logger.With("component", "rooms"),
		plog:     log.OrNoop(cfg.ProtocolLogger),
		interest: make(map[Room]int),
		sent:     make(map[Room]bool),
	}
}

// Join registers interest in room. The first interest subscribes while
// connected, or on the next connect. The returned function drops this
// interest and is safe to call more than once.
func (r *Rooms) Join(room Room) (leave func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interest[room]++
	if r.interest[room] == 1 && r.connected && !r.sent[room] {
		r.sendLocked(room, event.ActionSubscribe)
	}

	epoch := r.epoch
	var once sync.Once
	return func() { once.Do(func() { r.leave(room, epoch) }) }
}

func (r *Rooms) leave(room Room, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if epoch != r.epoch || r.interest[room] == 0 {
		return
	}
	r.interest[room]--
	if r.interest[room] > 0 {
		return
	}
	delete(r.interest, room)
	if r.sent[room] {
		delete(r.sent, room)
		if r.connected {
			r.sendLocked(room, event.ActionUnsubscribe)
		}
	}
}

// SetConnected records the connection state. On connect every room with
// interest is subscribed; on disconnect the server is assumed to have
// forgotten all subscriptions.
func (r *Rooms) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected == connected {
		return
	}
	r.connected = connected
	if !connected {
		r.sent = make(map[Room]bool)
		return
	}
	for _, room := range r.activeLocked() {
		if !r.sent[room] {
			r.sendLocked(room, event.ActionSubscribe)
		}
	}
}

// Clear drops all interest without sending anything. Outstanding leave
// functions become no-ops.
func (r *Rooms) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interest = make(map[Room]int)
	r.sent = make(map[Room]bool)
	r.epoch++
}

// Interest returns the local interest count for room.
func (r *Rooms) Interest(room Room) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interest[room]
}

// Subscribed reports whether a subscribe for room was sent on the
// current connection.
func (r *Rooms) Subscribed(room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[room]
}

// Active returns every room with interest, sorted.
func (r *Rooms) Active() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Rooms) activeLocked() []Room {
	rooms := make([]Room, 0, len(r.interest))
	for room := range r.interest {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].String() < rooms[j].String() })
	return rooms
}

// sendLocked writes a control frame while r.mu is held so frames for one
// room leave in the order their state changed.
func (r *Rooms) sendLocked(room Room, action event.Action) {
	if r.sender == nil {
		return
	}
	frame, err := event.EncodeControl(room.control(action))
	if err != nil {
		r.logger.Warn("encode control", "room", room.String(), "error", err)
		return
	}
	if err := r.sender.Send(frame); err != nil {
		// Retried on the next connect.
		r.logger.Warn("send control", "room", room.String(), "action", action, "error", err)
		return
	}
	if action == event.ActionSubscribe {
		r.sent[room] = true
	}

	ctrl := log.ControlSubscribe
	if action == event.ActionUnsubscribe {
		ctrl = log.ControlUnsubscribe
	}
	r.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerSession,
		Category:  log.CategoryControl,
		Control:   &log.ControlEvent{Type: ctrl, Room: room.String()},
	})
	r.logger.Debug("room control sent", "room", room.String(), "action", action)
}
