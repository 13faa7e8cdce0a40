// Package fetch loads authoritative cache values from the dashboard REST
// API. HTTPFetcher implements cache.Fetcher: each cache key is mapped to a
// request by a Route chosen on the key's domain and sub-key.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/event"
)

// DefaultMaxBody caps a response body.
const DefaultMaxBody = 8 << 20

// Fetch errors.
var (
	ErrNoRoute      = errors.New("no route for cache key")
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// Config configures an HTTPFetcher.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1". Required.
	BaseURL string

	// Client performs requests. Defaults to http.DefaultClient.
	Client *http.Client

	// Credentials, if set, adds a bearer token to every request.
	Credentials credential.Provider

	// Routes maps keys to requests. Defaults to DefaultRoutes().
	Routes []Route

	// MaxBody caps a response body (default 8 MiB).
	MaxBody int64

	// Logger is the operational logger. Nil discards.
	Logger *slog.Logger
}

type routeKey struct {
	domain event.Domain
	subKey string
}

// HTTPFetcher fetches cache values over HTTP.
type HTTPFetcher struct {
	base        string
	client      *http.Client
	credentials credential.Provider
	routes      map[routeKey]Route
	maxBody     int64
	logger      *slog.Logger
}

// New creates an HTTPFetcher.
func New(cfg Config) (*HTTPFetcher, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Routes == nil {
		cfg.Routes = DefaultRoutes()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	f := &HTTPFetcher{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		client:      cfg.Client,
		credentials: cfg.Credentials,
		routes:      make(map[routeKey]Route, len(cfg.Routes)),
		maxBody:     cfg.MaxBody,
		logger:      cfg.Logger.With("component", "fetch"),
	}
	for _, r := range cfg.Routes {
		f.routes[routeKey{r.Domain, r.SubKey}] = r
	}
	return f, nil
}

// Fetch issues the GET request routed for key and decodes the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, key cache.Key) (any, error) {
	route, ok := f.routes[routeKey{key.Domain, key.SubKey}]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", key, ErrNoRoute)
	}
	path, query, err := route.Path(key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	target := f.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.credentials != nil {
		token, err := f.credentials.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: credential: %w", key, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", key, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("fetch %s: %w", key, ErrBodyTooLarge)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: target, Body: strings.TrimSpace(string(truncate(body, 256)))}
	}

	v, err := route.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: decode: %w", key, err)
	}
	f.logger.Debug("fetched", "key", key.String(), "bytes", len(body))
	return v, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// Compile-time interface satisfaction check.
var _ cache.Fetcher = (*HTTPFetcher)(nil)
