package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/event"
)

// ErrNoFetcher is returned by Refetch on a store without a Fetcher.
var ErrNoFetcher = errors.New("cache has no fetcher")

// Fetcher loads the authoritative value for a key.
type Fetcher interface {
	Fetch(ctx context.Context, key Key) (any, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, key Key) (any, error) { return f(ctx, key) }

// Entry is one cached value.
type Entry struct {
	Value any

	// Stale marks a value known to be out of date, e.g. after a failed
	// refetch or an explicit invalidation.
	Stale bool

	UpdatedAt time.Time

	// Version increases with every write to the store.
	Version uint64

	// Removed is set only on the entry passed to OnChange listeners
	// when a key is deleted. Value is nil.
	Removed bool
}

// Config configures a Store.
type Config struct {
	// Fetcher serves Refetch. Optional.
	Fetcher Fetcher

	// Clock stamps entries. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

// Store is a concurrency-safe query cache.
type Store struct {
	fetcher Fetcher
	clock   clock.Clock
	logger  *slog.Logger
	group   singleflight.Group

	mu        sync.RWMutex
	entries   map[Key]Entry
	version   uint64
	nextID    uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn func(Key, Entry)
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		fetcher: cfg.Fetcher,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "cache"),
		entries: make(map[Key]Entry),
	}
}

// Get returns the entry for key.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Set stores value as the authoritative, fresh value for key.
func (s *Store) Set(key Key, value any) Entry {
	s.mu.Lock()
	e := s.writeLocked(key, value)
	s.mu.Unlock()
	s.notify(key, e)
	return e
}

// Update merges into key under the store lock. fn receives the current
// value (ok is false on a miss) and returns the next value; keep=false
// leaves the entry untouched. fn must not call back into the store.
// A merge keeps the entry's Stale flag.
func (s *Store) Update(key Key, fn func(prev any, ok bool) (next any, keep bool)) (Entry, bool) {
	s.mu.Lock()
	cur, ok := s.entries[key]
	next, keep := fn(cur.Value, ok)
	if !keep {
		s.mu.Unlock()
		return cur, false
	}
	stale := cur.Stale
	e := s.writeLocked(key, next)
	if stale {
		e.Stale = true
		s.entries[key] = e
	}
	s.mu.Unlock()

	s.notify(key, e)
	return e, true
}

// Invalidate marks key stale. It reports whether the key was cached.
func (s *Store) Invalidate(key Key) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		e.Stale = true
		s.version++
		e.Version = s.version
		s.entries[key] = e
	}
	s.mu.Unlock()
	if ok {
		s.notify(key, e)
	}
	return ok
}

// Delete drops key. It reports whether the key was cached; listeners
// see a Removed entry only in that case.
func (s *Store) Delete(key Key) bool {
	s.mu.Lock()
	_, ok := s.entries[key]
	var e Entry
	if ok {
		delete(s.entries, key)
		s.version++
		e = Entry{UpdatedAt: s.clock.Now(), Version: s.version, Removed: true}
	}
	s.mu.Unlock()
	if ok {
		s.notify(key, e)
	}
	return ok
}

// Keys returns the cached keys, limited to domains if any are given,
// sorted by String.
func (s *Store) Keys(domains ...event.Domain) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		if len(domains) == 0 || containsDomain(domains, k.Domain) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of cached keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Refetch loads key from the Fetcher and overwrites the entry. Concurrent
// calls for the same key share one fetch. On failure the entry, if any,
// is marked stale.
func (s *Store) Refetch(ctx context.Context, key Key) (Entry, error) {
	if s.fetcher == nil {
		return Entry{}, ErrNoFetcher
	}

	v, err, shared := s.group.Do(key.String(), func() (any, error) {
		value, err := s.fetcher.Fetch(ctx, key)
		if err != nil {
			s.Invalidate(key)
			return nil, fmt.Errorf("refetch %s: %w", key, err)
		}
		return s.Set(key, value), nil
	})
	if err != nil {
		s.logger.Warn("refetch failed", "key", key.String(), "error", err)
		return Entry{}, err
	}
	if shared {
		s.logger.Debug("refetch shared", "key", key.String())
	}
	return v.(Entry), nil
}

// OnChange registers fn for every write and delete. fn runs outside the
// store lock.
func (s *Store) OnChange(fn func(Key, Entry)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) writeLocked(key Key, value any) Entry {
	s.version++
	e := Entry{Value: value, UpdatedAt: s.clock.Now(), Version: s.version}
	s.entries[key] = e
	return e
}

func (s *Store) notify(key Key, e Entry) {
	s.mu.RLock()
	listeners := append([]listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.fn(key, e)
	}
}

func containsDomain(domains []event.Domain, d event.Domain) bool {
	for _, x := range domains {
		if x == d {
			return true
		}
	}
	return false
}
