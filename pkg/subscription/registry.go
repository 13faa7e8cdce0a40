package subscription

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/log"
)

// Handler processes one envelope.
type Handler func(env event.Envelope)

// HandlerError reports a handler that panicked during Dispatch.
type HandlerError struct {
	Type  event.Type
	ID    uuid.UUID
	Value any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s panicked: %v", e.ID, e.Type, e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Config configures a Registry.
type Config struct {
	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives dispatch and handler error events.
	ProtocolLogger log.Logger

	// OnHandlerError, if set, is called for every recovered panic.
	OnHandlerError func(*HandlerError)
}

// Registry maps event types to handlers.
type Registry struct {
	logger  *slog.Logger
	plog    log.Logger
	onError func(*HandlerError)

	mu      sync.RWMutex
	entries map[event.Type][]entry
}

type entry struct {
	id      uuid.UUID
	handler Handler
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		logger:  cfg.Logger.With("component", "subscription"),
		plog:    log.OrNoop(cfg.ProtocolLogger),
		onError: cfg.OnHandlerError,
		entries: make(map[event.Type][]entry),
	}
}

// Subscribe registers h for events of type t. The returned function
// removes exactly this registration and is safe to call more than once.
func (r *Registry) Subscribe(t event.Type, h Handler) (unsubscribe func()) {
	id := uuid.New()

	r.mu.Lock()
	r.entries[t] = append(r.entries[t], entry{id: id, handler: h})
	r.mu.Unlock()

	return func() { r.remove(t, id) }
}

func (r *Registry) remove(t event.Type, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[t]
	for i, e := range list {
		if e.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.entries, t)
	} else {
		r.entries[t] = list
	}
}

// On registers a handler typed to one payload struct. Envelopes whose
// payload is not a T are ignored.
func On[T event.Payload](r *Registry, fn func(p T, env event.Envelope)) (unsubscribe func()) {
	var zero T
	return r.Subscribe(zero.EventType(), func(env event.Envelope) {
		if p, ok := env.Data.(T); ok {
			fn(p, env)
		}
	})
}

// Dispatch runs every handler registered for env.Type, in registration
// order, and returns how many ran.
func (r *Registry) Dispatch(env event.Envelope) int {
	r.mu.RLock()
	list := append([]entry(nil), r.entries[env.Type]...)
	r.mu.RUnlock()

	for _, e := range list {
		r.call(env, e)
	}

	r.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerEnvelope,
		Category:  log.CategoryMessage,
		Envelope: &log.EnvelopeEvent{
			Type:     string(env.Type),
			EntityID: event.EntityID(env.Data),
			Handlers: len(list),
			Sent:     env.Timestamp,
		},
	})
	if len(list) == 0 {
		r.logger.Debug("no handlers for event", "type", env.Type)
	}
	return len(list)
}

func (r *Registry) call(env event.Envelope, e entry) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		herr := &HandlerError{Type: env.Type, ID: e.id, Value: v}
		r.logger.Warn("event handler panicked", "type", env.Type, "handler", e.id, "panic", v)
		r.plog.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionNone,
			Layer:     log.LayerEnvelope,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerEnvelope,
				Kind:    log.ErrorHandler,
				Message: herr.Error(),
				Context: string(env.Type),
			},
		})
		if r.onError != nil {
			r.onError(herr)
		}
	}()
	e.handler(env)
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[event.Type][]entry)
}

// Len returns the number of handlers registered for t.
func (r *Registry) Len(t event.Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[t])
}

// Types returns the event types with at least one handler, sorted.
func (r *Registry) Types() []event.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]event.Type, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
