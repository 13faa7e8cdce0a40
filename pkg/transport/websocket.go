package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/version"
)

// NameWebSocket is the WebSocket transport name.
const NameWebSocket = "websocket"

// WebSocketConfig configures the duplex transport.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Dialer overrides the default dialer (10s handshake timeout).
	Dialer *websocket.Dialer

	// TLS configures wss:// connections made by the default dialer.
	TLS *tls.Config

	// Header is sent with the upgrade request.
	Header http.Header

	// KeepAlive configures ping/pong liveness.
	KeepAlive KeepAliveConfig

	// WriteTimeout bounds every write (default 10s).
	WriteTimeout time.Duration

	// Logger receives protocol capture events. Nil disables capture.
	Logger log.Logger

	// MaxFrameCapture bounds captured frame bytes.
	MaxFrameCapture int
}

// WebSocket is the duplex push transport.
type WebSocket struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(config WebSocketConfig) *WebSocket {
	config.KeepAlive = config.KeepAlive.withDefaults()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	config.Logger = log.OrNoop(config.Logger)

	dialer := config.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  config.TLS,
			Subprotocols:     version.SupportedSubprotocols(),
		}
	}
	return &WebSocket{config: config, dialer: dialer}
}

// Name returns "websocket".
func (w *WebSocket) Name() string { return NameWebSocket }

// Open starts dialing in the background.
func (w *WebSocket) Open(token string, h Handler) (Conn, error) {
	if err := checkURL(w.config.URL, "ws", "wss"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &wsConn{
		id:      id,
		config:  w.config,
		dialer:  w.dialer,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		capture: capture{
			logger:    w.config.Logger,
			transport: NameWebSocket,
			connID:    id,
			maxFrame:  w.config.MaxFrameCapture,
		},
	}
	go c.run(token)
	return c, nil
}

// authFrame is the first frame sent after the upgrade.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsConn struct {
	id      string
	config  WebSocketConfig
	dialer  *websocket.Dialer
	handler Handler
	capture capture

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex // serialises data frame writes
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) run(token string) {
	conn, resp, err := c.dialer.DialContext(c.ctx, c.config.URL, c.config.Header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			err = fmt.Errorf("%w: %w", &StatusError{Code: resp.StatusCode}, err)
		}
		c.finish(fmt.Errorf("dial: %w", err))
		return
	}
	if err := version.CheckSubprotocol(conn.Subprotocol()); err != nil {
		conn.Close()
		c.finish(fmt.Errorf("dial: %w", err))
		return
	}

	// The connection is not shared yet, so no write lock is needed.
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(authFrame{Type: "auth", Token: token}); err != nil {
		conn.Close()
		c.finish(fmt.Errorf("send auth: %w", err))
		return
	}
	c.capture.control(log.DirectionOut, log.ControlAuth)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	deadline := c.config.KeepAlive.DetectionDelay()
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		c.capture.control(log.DirectionIn, log.ControlPong)
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	if c.closed.Load() {
		return
	}
	c.handler.OnOpen()

	go c.pingLoop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.finish(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		c.capture.frame(log.DirectionIn, data)

		if c.closed.Load() {
			return
		}
		c.handler.OnMessage(Message{Data: data})
	}
}

// pingLoop sends periodic pings until the connection ends.
func (c *wsConn) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.KeepAlive.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			if err != nil {
				return
			}
			c.capture.control(log.DirectionOut, log.ControlPing)
		}
	}
}

// finish reports the end of a connection that was not closed locally.
func (c *wsConn) finish(err error) {
	c.cancel()
	if c.closed.Swap(true) {
		return
	}
	if err != nil {
		c.capture.error(err, "connection")
	}
	c.handler.OnClose(err)
}

// Send writes a text frame.
func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	c.capture.frame(log.DirectionOut, data)
	return nil
}

// Close sends a close frame, best effort, and closes the socket.
func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.capture.control(log.DirectionOut, log.ControlClose)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (want scheme %v)", ErrInvalidURL, raw, schemes)
}
