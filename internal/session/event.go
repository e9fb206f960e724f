package session

import (
	"time"

	"github.com/paramlink/paramlink/internal/protocol"
)

// Event is published on the manager's bus. For one connection attempt the
// order is always: one Connected, any number of DataReceived, one
// Disconnected.
type Event interface {
	SessionID() string
}

// Connected is published once the TCP connection is up.
type Connected struct {
	Session string
	Addr    string
	At      time.Time
}

// Disconnected ends a session. Err is nil for a requested shutdown,
// otherwise an *IOError, *ProtocolError or an error wrapping
// ErrHeartbeatFailed.
type Disconnected struct {
	Session string
	Err     error
	At      time.Time
}

// DataReceived carries one decoded response.
type DataReceived struct {
	Session  string
	Response protocol.Response
	At       time.Time
}

func (e Connected) SessionID() string    { return e.Session }
func (e Disconnected) SessionID() string { return e.Session }
func (e DataReceived) SessionID() string { return e.Session }

// State is the manager's connection state as seen by callers.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the manager. Err holds the last connect failure
// (StateIdle) or the disconnect reason (StateDisconnected).
type Status struct {
	State   State
	Session string
	Addr    string
	Err     error
}
