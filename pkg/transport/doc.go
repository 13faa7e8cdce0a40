// Package transport provides the push transports used by the connection
// manager.
//
// Two variants are supported:
//   - WebSocket: a duplex socket. The bearer token is sent in an auth
//     frame right after the handshake; the client can send room control
//     messages; liveness is monitored with ping/pong.
//   - EventStream: a server-sent event stream over HTTP. The bearer token
//     travels as a query parameter; the stream is receive-only.
//
// # Ownership
//
// A Transport is a factory. Open starts one connection attempt in the
// background and returns its Conn immediately; progress is reported to
// the Handler (OnOpen, OnMessage, OnClose). A Conn that was closed
// locally never reports OnClose. Only the connection manager calls Open,
// Send and Close.
//
// # Keep-Alive (WebSocket)
//
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//   - Maximum detection delay: 95 seconds
package transport
