package connection

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	// ErrNotAuthenticated means no credential could be minted. It is not
	// retried automatically.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotConnected is returned by Send while the wire is down.
	ErrNotConnected = errors.New("not connected")

	// ErrManagerClosed is returned by Connect after Close.
	ErrManagerClosed = errors.New("connection manager closed")

	// ErrReleaseUnderflow is the panic value of a Release without a
	// matching Acquire.
	ErrReleaseUnderflow = errors.New("session released more times than acquired")
)

// AuthError reports a failed credential mint. It matches
// ErrNotAuthenticated and the provider's error.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNotAuthenticated, e.Err)
}

func (e *AuthError) Unwrap() []error {
	return []error{ErrNotAuthenticated, e.Err}
}

// TransportError reports a connection that failed to open or dropped.
// It is only ever exposed as Snapshot.Err.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no connection and no attempt in progress.
	StateDisconnected State = iota

	// StateConnecting indicates a credential mint or transport open is in
	// progress.
	StateConnecting

	// StateConnected indicates the transport is open.
	StateConnected

	// StateError indicates the last attempt failed or the connection
	// dropped. A reconnect may be scheduled.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateError, StateDisconnected},
	StateConnected:    {StateDisconnected, StateError},
	StateError:        {StateConnecting, StateDisconnected, StateError},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Snapshot is an immutable view of the connection.
// Err is nil unless State is StateError.
type Snapshot struct {
	State State
	Err   error
}

// Connected reports whether the wire is up.
func (s Snapshot) Connected() bool { return s.State == StateConnected }

func (s Snapshot) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s (%v)", s.State, s.Err)
	}
	return s.State.String()
}
