package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned by Connect while a session exists,
	// including one that is still dialling.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected is returned by Send when no session is connected.
	ErrNotConnected = errors.New("not connected")

	// ErrHeartbeatFailed wraps the write error of a failed liveness probe.
	ErrHeartbeatFailed = errors.New("heartbeat failure")

	// ErrManagerClosed is returned by Connect after Close.
	ErrManagerClosed = errors.New("session manager closed")

	errStopped = errors.New("session stopped")
)

// ConnectError reports a failed dial. It is returned to the caller of
// Connect and never published on the bus.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Addr, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError reports an inbound frame the codec rejected. The link is
// treated as corrupt and the session ends.
type ProtocolError struct {
	Frame []byte
	Err   error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// IOError reports a socket failure. Op is "read" or "write"; a peer that
// closed the connection shows up as a read with Err == io.EOF.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Reason renders a Disconnected error for display. A nil error is a clean
// shutdown.
func Reason(err error) string {
	if err == nil {
		return "disconnected"
	}
	return err.Error()
}

// reasonLabel buckets a disconnect cause for metrics.
func reasonLabel(err error) string {
	var protoErr *ProtocolError
	var ioErr *IOError
	switch {
	case err == nil:
		return "clean"
	case errors.Is(err, ErrHeartbeatFailed):
		return "heartbeat"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
