// Package service assembles the live sync layer for one dashboard
// client.
//
// A Service owns one connection.Manager and everything fed by it:
//   - the reference-counted Session that connects on first use
//   - the consumer subscription Registry, cleared when the session ends
//   - server room interest (duplex transports only)
//   - the cache Store and the bridges merging events into it
//   - the Resync pass run after every reconnect
//   - the analytics Refresher, ticking while connected
//
// Example usage:
//
//	cfg := service.DefaultConfig()
//	cfg.Transport = transport.NewWebSocket(transport.WebSocketConfig{URL: pushURL})
//	cfg.Credentials = credential.Static(token)
//	cfg.Fetcher = fetcher
//
//	svc, err := service.New(cfg)
//	svc.Start(ctx)
//	defer svc.Close()
//
//	release, err := svc.Hold(ctx)
//	defer release()
//	unsubscribe := svc.Subscribe(event.TypeAlertCreated, func(env event.Envelope) { ... })
//	defer unsubscribe()
//
// # Event flow
//
// Every inbound frame is decoded into an event.Envelope. Malformed frames
// and unknown event types are logged and dropped. Valid envelopes are
// first merged into the cache by the bridges and then dispatched to
// consumer handlers, so a handler reading the cache sees the event
// applied.
package service
