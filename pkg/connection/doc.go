// Package connection owns the live push connection.
//
// Manager wraps a transport in a reconnecting state machine and is the only
// source of truth for whether the wire is connected. Session reference
// counts consumers so the connection exists exactly while someone needs it.
//
// # States
//
//	DISCONNECTED ──Connect──▶ CONNECTING ──open──▶ CONNECTED
//	      ▲                      │   ▲                │
//	      │                 fail │   │ timer     drop │ close
//	      │                      ▼   │                ▼
//	      └─────Disconnect───── ERROR ◀───────────────┘
//
// A clean server close lands in DISCONNECTED instead of ERROR; both
// schedule a reconnect while the manager is wanted.
//
// # Reconnection Strategy
//
// Delays grow exponentially from Initial to Max:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Reset to Initial once a connection opens
//
// Jitter is off by default and can be enabled per BackoffConfig:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// # Credentials
//
// A credential is minted for every attempt. If minting fails the manager
// enters ERROR with an error matching ErrNotAuthenticated and does not
// retry; retrying with the same inputs cannot succeed. Transport failures
// are never returned from public methods, they are observable as state.
package connection
