// Package credential supplies short-lived bearer tokens for the push
// transport handshake.
package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sensorwatch/livesync/pkg/clock"
)

// ErrNoPrincipal is returned when nobody is signed in.
var ErrNoPrincipal = errors.New("no signed-in principal")

// Provider mints a bearer token on request.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context) (string, error)

// Token calls f.
func (f Func) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static returns a Provider that always yields token. An empty token
// yields ErrNoPrincipal.
func Static(token string) Provider {
	return Func(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoPrincipal
		}
		return token, nil
	})
}

// Minter mints a token together with its expiry.
type Minter func(ctx context.Context) (token string, expiresAt time.Time, err error)

// DefaultRefreshMargin is how long before expiry a cached token is replaced.
const DefaultRefreshMargin = 30 * time.Second

// Cached is a Provider that reuses a minted token until shortly before
// it expires. Concurrent callers share one mint.
type Cached struct {
	mint   Minter
	margin time.Duration
	clock  clock.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  *mintCall
}

type mintCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewCached wraps mint. A zero margin uses DefaultRefreshMargin; a nil
// clock uses the real clock.
func NewCached(mint Minter, margin time.Duration, c clock.Clock) *Cached {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	if c == nil {
		c = clock.Real()
	}
	return &Cached{mint: mint, margin: margin, clock: c}
}

// Token returns the cached token or mints a new one.
func (p *Cached) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && p.clock.Now().Add(p.margin).Before(p.expiresAt) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	call := p.inflight
	if call == nil {
		call = &mintCall{done: make(chan struct{})}
		p.inflight = call
		go p.doMint(call)
	}
	p.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// doMint runs detached from any caller's context: a caller giving up
// must not poison the shared result for the others.
func (p *Cached) doMint(call *mintCall) {
	token, expiresAt, err := p.mint(context.Background())
	if err == nil && token == "" {
		err = ErrNoPrincipal
	}

	p.mu.Lock()
	if err == nil {
		p.token = token
		p.expiresAt = expiresAt
	} else {
		p.token = ""
	}
	p.inflight = nil
	p.mu.Unlock()

	call.token, call.err = token, err
	close(call.done)
}

// Invalidate drops the cached token, e.g. after the server rejected it
// or the user signed out.
func (p *Cached) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiresAt = time.Time{}
}
