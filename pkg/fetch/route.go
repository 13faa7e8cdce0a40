package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/event"
)

// ErrMissingID is returned when a path needs an entity id the key lacks.
var ErrMissingID = errors.New("key has no entity id")

// PathFunc builds the request path and query for a key.
type PathFunc func(key cache.Key) (path string, query url.Values, err error)

// DecodeFunc decodes a response body into the value cached for a key.
type DecodeFunc func(body []byte) (any, error)

// Route maps one (domain, sub-key) pair to a request.
type Route struct {
	Domain event.Domain
	SubKey string
	Path   PathFunc
	Decode DecodeFunc
}

// DefaultRoutes returns the routes for every key the bridges maintain.
func DefaultRoutes() []Route {
	return []Route{
		{event.DomainAlerts, bridge.SubKeyList, Query("/alerts"), JSON[[]event.Alert]()},
		{event.DomainAlerts, bridge.SubKeyDetail, Entity("/alerts/{id}"), JSON[event.Alert]()},
		{event.DomainDevices, bridge.SubKeyList, Query("/devices"), JSON[[]event.Device]()},
		{event.DomainDevices, bridge.SubKeyDetail, Entity("/devices/{id}"), JSON[event.Device]()},
		{event.DomainDevices, bridge.SubKeyTelemetry, Entity("/devices/{id}/telemetry"), JSON[[]event.Reading]()},
		{event.DomainAnalytics, bridge.SubKeySummary, Query("/analytics/summary"), JSON[event.Summary]()},
	}
}

// JSON decodes the body as a T.
func JSON[T any]() DecodeFunc {
	return func(body []byte) (any, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Query returns a PathFunc that sends the key's filter fields as query
// parameters, sorted by name.
func Query(path string) PathFunc {
	return func(key cache.Key) (string, url.Values, error) {
		q, err := filterQuery(key)
		return path, q, err
	}
}

// Entity returns a PathFunc that substitutes the key's entity id for
// "{id}" in pattern.
func Entity(pattern string) PathFunc {
	return func(key cache.Key) (string, url.Values, error) {
		id := bridge.EntityID(key)
		if id == "" {
			return "", nil, ErrMissingID
		}
		return strings.ReplaceAll(pattern, "{id}", url.PathEscape(id)), nil, nil
	}
}

func filterQuery(key cache.Key) (url.Values, error) {
	fields := map[string]any{}
	if err := key.DecodeFilter(&fields); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	q := url.Values{}
	for _, name := range names {
		switch v := fields[name].(type) {
		case nil:
		case string:
			q.Set(name, v)
		case float64, bool:
			q.Set(name, fmt.Sprint(v))
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", name, err)
			}
			q.Set(name, string(raw))
		}
	}
	return q, nil
}
