// Package event defines the push event envelope and its payloads.
//
// Every server push is wrapped in an envelope:
//
//	{"type": "alert.created", "data": {...}, "timestamp": "2026-01-02T15:04:05Z"}
//
// The envelope is modelled as a tagged union: Type selects exactly one
// concrete Payload struct, so dispatch and cache merges switch over
// known shapes instead of probing maps at runtime. Frames with an
// unknown type, a missing identity, or undecodable data are rejected
// with a *ProtocolError and never reach subscribers.
//
// # Control Messages
//
// On the duplex transport the client sends room control messages using
// the same envelope shape:
//
//	{"type": "subscribe:alerts", "data": {"ids": ["a-1", "a-2"]}}
//	{"type": "unsubscribe:devices"}
package event
