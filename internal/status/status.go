// Package status serves a read-only JSON view of a running sync layer
// for local debugging.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

// Source is the state exposed by the endpoint. *service.Service
// implements it.
type Source interface {
	ConnectionState() connection.Snapshot
	SessionCount() int
	Cache() *cache.Store
	Rooms() *subscription.Rooms
	Events() *subscription.Registry
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
	Sessions int          `json:"sessions"`
	Rooms    []string     `json:"rooms"`
	Handlers []event.Type `json:"handlers"`
}

// EntryInfo describes one cache entry in GET /cache.
type EntryInfo struct {
	Key       string    `json:"key"`
	Domain    string    `json:"domain"`
	SubKey    string    `json:"subKey"`
	Filter    string    `json:"filter,omitempty"`
	Stale     bool      `json:"stale"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type server struct {
	src    Source
	logger *slog.Logger
}

// NewRouter returns the status handler.
func NewRouter(src Source, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := server{src: src, logger: logger.With("component", "status")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Get("/state", s.state)
	r.Get("/cache", s.cacheIndex)
	r.Get("/cache/{domain}/{subKey}", s.cacheEntry)
	return r
}

func (s server) state(w http.ResponseWriter, r *http.Request) {
	snap := s.src.ConnectionState()
	resp := StateResponse{
		State:    snap.State.String(),
		Sessions: s.src.SessionCount(),
		Rooms:    []string{},
		Handlers: s.src.Events().Types(),
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	for _, room := range s.src.Rooms().Active() {
		resp.Rooms = append(resp.Rooms, room.String())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s server) cacheIndex(w http.ResponseWriter, r *http.Request) {
	var domains []event.Domain
	for _, d := range r.URL.Query()["domain"] {
		domains = append(domains, event.Domain(d))
	}

	store := s.src.Cache()
	out := []EntryInfo{}
	for _, k := range store.Keys(domains...) {
		e, ok := store.Get(k)
		if !ok {
			continue
		}
		out = append(out, EntryInfo{
			Key:       k.String(),
			Domain:    string(k.Domain),
			SubKey:    k.SubKey,
			Filter:    k.Filter,
			Stale:     e.Stale,
			Version:   e.Version,
			UpdatedAt: e.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// cacheEntry returns one value. The optional "filter" query parameter
// is the JSON filter of the key.
func (s server) cacheEntry(w http.ResponseWriter, r *http.Request) {
	var filter any
	if raw := r.URL.Query().Get("filter"); raw != "" {
		if !json.Valid([]byte(raw)) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filter is not valid JSON"})
			return
		}
		filter = json.RawMessage(raw)
	}
	key, err := cache.NewKey(event.Domain(chi.URLParam(r, "domain")), chi.URLParam(r, "subKey"), filter)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	e, ok := s.src.Cache().Get(key)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not cached", "key": key.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"key":       key.String(),
		"stale":     e.Stale,
		"version":   e.Version,
		"updatedAt": e.UpdatedAt,
		"value":     e.Value,
	})
}

func (s server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}
