// Package protocol defines the command/response wire protocol spoken with a
// control endpoint. Every frame is one line of JSON terminated by '\n'.
// Framing (splitting a byte stream on '\n') is left to the caller; the
// functions here operate on exactly one frame.
package protocol

import "fmt"

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// CommandType is the "type" tag of an outbound frame.
type CommandType string

const (
	CmdListParameters      CommandType = "ListParameters"
	CmdListSignals         CommandType = "ListSignals"
	CmdGetParameterValue   CommandType = "GetParameterValue"
	CmdSetParameterValue   CommandType = "SetParameterValue"
	CmdSubscribeToSignal   CommandType = "SubscribeToSignal"
	CmdCloseListenerThread CommandType = "CloseListenerThread"
)

// Command is an outbound request. The concrete types below are the only
// implementations; values are immutable once built.
type Command interface {
	Type() CommandType
}

// ListParameters asks the endpoint for every parameter and its value.
type ListParameters struct{}

// ListSignals asks the endpoint for every signal it can stream.
type ListSignals struct{}

// GetParameterValue asks for the value of a single parameter.
type GetParameterValue struct {
	Name string
}

// SetParameterValue writes a parameter. Value must be finite.
type SetParameterValue struct {
	Name  string
	Value float64
}

// SubscribeToSignal starts a periodic stream of one signal's value.
type SubscribeToSignal struct {
	Name string
}

// CloseListenerThread asks the endpoint to stop serving this connection.
type CloseListenerThread struct{}

func (ListParameters) Type() CommandType      { return CmdListParameters }
func (ListSignals) Type() CommandType         { return CmdListSignals }
func (GetParameterValue) Type() CommandType   { return CmdGetParameterValue }
func (SetParameterValue) Type() CommandType   { return CmdSetParameterValue }
func (SubscribeToSignal) Type() CommandType   { return CmdSubscribeToSignal }
func (CloseListenerThread) Type() CommandType { return CmdCloseListenerThread }

func (c GetParameterValue) String() string { return fmt.Sprintf("GetParameterValue(%s)", c.Name) }
func (c SetParameterValue) String() string {
	return fmt.Sprintf("SetParameterValue(%s=%g)", c.Name, c.Value)
}
func (c SubscribeToSignal) String() string { return fmt.Sprintf("SubscribeToSignal(%s)", c.Name) }
