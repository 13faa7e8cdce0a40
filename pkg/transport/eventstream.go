package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/version"
)

// NameEventStream is the event-stream transport name.
const NameEventStream = "eventstream"

// Event-stream defaults.
const (
	// DefaultTokenParam is the query parameter carrying the credential.
	DefaultTokenParam = "token"

	// DefaultIdleTimeout closes a stream that delivered nothing, not even
	// a comment line, for this long.
	DefaultIdleTimeout = 90 * time.Second

	// maxLineSize bounds one event-stream line.
	maxLineSize = 1 << 20
)

// EventStreamConfig configures the receive-only transport.
type EventStreamConfig struct {
	// URL is the http:// or https:// stream endpoint.
	URL string

	// Client performs the request. It must not set a total timeout.
	Client *http.Client

	// TokenParam names the credential query parameter (default "token").
	TokenParam string

	// IdleTimeout closes a silent stream (default 90s).
	IdleTimeout time.Duration

	// Logger receives protocol capture events. Nil disables capture.
	Logger log.Logger

	// MaxFrameCapture bounds captured frame bytes.
	MaxFrameCapture int
}

// EventStream is the receive-only push transport. The credential travels
// in the query string because browsers' EventSource cannot set headers and
// servers built for them expect it there.
type EventStream struct {
	config EventStreamConfig
}

// NewEventStream creates an event-stream transport.
func NewEventStream(config EventStreamConfig) *EventStream {
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if config.TokenParam == "" {
		config.TokenParam = DefaultTokenParam
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	config.Logger = log.OrNoop(config.Logger)
	return &EventStream{config: config}
}

// Name returns "eventstream".
func (e *EventStream) Name() string { return NameEventStream }

// Open starts the stream request in the background.
func (e *EventStream) Open(token string, h Handler) (Conn, error) {
	if err := checkURL(e.config.URL, "http", "https"); err != nil {
		return nil, err
	}
	u, _ := url.Parse(e.config.URL)
	q := u.Query()
	q.Set(e.config.TokenParam, token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &sseConn{
		id:      id,
		config:  e.config,
		url:     u.String(),
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		capture: capture{
			logger:    e.config.Logger,
			transport: NameEventStream,
			connID:    id,
			maxFrame:  e.config.MaxFrameCapture,
		},
	}
	go c.run()
	return c, nil
}

type sseConn struct {
	id      string
	config  EventStreamConfig
	url     string
	handler Handler
	capture capture

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	idle   atomic.Bool
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) run() {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.finish(fmt.Errorf("request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(version.Header, version.Current)

	resp, err := c.config.Client.Do(req)
	if err != nil {
		c.finish(fmt.Errorf("dial: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.finish(fmt.Errorf("dial: %w", &StatusError{Code: resp.StatusCode}))
		return
	}

	watchdog := time.AfterFunc(c.config.IdleTimeout, func() {
		c.idle.Store(true)
		c.cancel()
	})
	defer watchdog.Stop()

	if c.closed.Load() {
		return
	}
	c.handler.OnOpen()

	err = c.read(resp.Body, func() { watchdog.Reset(c.config.IdleTimeout) })
	switch {
	case c.idle.Load():
		err = fmt.Errorf("no data for %s", c.config.IdleTimeout)
	case errors.Is(err, io.EOF):
		err = nil
	}
	c.finish(err)
}

// read parses the stream and dispatches events until the body ends.
// It always returns a non-nil error, io.EOF for a clean end.
func (c *sseConn) read(body io.Reader, alive func()) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		event string
		data  bytes.Buffer
		have  bool
	)
	for scanner.Scan() {
		alive()
		line := scanner.Bytes()

		if len(line) == 0 {
			if have {
				frame := append([]byte(nil), data.Bytes()...)
				c.capture.frame(log.DirectionIn, frame)
				if c.closed.Load() {
					return io.EOF
				}
				c.handler.OnMessage(Message{Event: event, Data: frame})
			}
			event, have = "", false
			data.Reset()
			continue
		}
		if line[0] == ':' {
			c.capture.control(log.DirectionIn, log.ControlPing)
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			event = string(value)
		case "data":
			if have {
				data.WriteByte('\n')
			}
			data.Write(value)
			have = true
		}
		// id and retry are ignored: reconnection is owned by the
		// connection manager and there is no replay.
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (c *sseConn) finish(err error) {
	c.cancel()
	if c.closed.Swap(true) {
		return
	}
	if err != nil {
		c.capture.error(err, "stream")
	}
	c.handler.OnClose(err)
}

// Send is not supported on a receive-only stream.
func (c *sseConn) Send([]byte) error {
	return ErrSendUnsupported
}

// Close cancels the stream request.
func (c *sseConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	c.capture.control(log.DirectionOut, log.ControlClose)
	return nil
}
