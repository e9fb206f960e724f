package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// ResponseType is the "type" tag of an inbound frame.
type ResponseType string

const (
	RespParameters ResponseType = "Parameters"
	RespDone       ResponseType = "Done"
)

// Response is an inbound result. Only the codec constructs these from wire
// data; Parameters and Done are the only implementations.
type Response interface {
	Type() ResponseType
}

// Parameters maps names to values. It answers ListParameters,
// GetParameterValue and ListSignals, and carries streamed signal samples.
type Parameters map[string]float64

// Done acknowledges a command that has no data to return.
type Done struct{}

func (Parameters) Type() ResponseType { return RespParameters }
func (Done) Type() ResponseType       { return RespDone }

// Names returns the parameter names in sorted order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Parameters) String() string {
	parts := make([]string, 0, len(p))
	for _, name := range p.Names() {
		parts = append(parts, fmt.Sprintf("%s=%g", name, p[name]))
	}
	return "Parameters(" + strings.Join(parts, ", ") + ")"
}

func (Done) String() string { return "Done" }
