package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

var (
	// ErrMalformedFrame is returned when a frame is not valid JSON, carries
	// an unrecognised tag, or holds a non-finite or non-numeric value.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownVariant is returned when the tag is recognised but a field
	// the variant requires is absent.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrInvalidCommand is returned by EncodeCommand for values that cannot
	// be put on the wire, such as a NaN parameter value.
	ErrInvalidCommand = errors.New("invalid command")
)

// valuesField is the key holding the payload of a tuple variant
// ({"type":"Parameters","0":{...}}).
const valuesField = "0"

type commandFrame struct {
	Type  CommandType `json:"type"`
	Name  *string     `json:"name,omitempty"`
	Value *float64    `json:"value,omitempty"`
}

type responseFrame struct {
	Type   ResponseType       `json:"type"`
	Values map[string]float64 `json:"0,omitempty"`
}

// EncodeCommand renders cmd as one newline-terminated frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidCommand)
	}
	f := commandFrame{Type: cmd.Type()}
	switch c := cmd.(type) {
	case ListParameters, ListSignals, CloseListenerThread:
	case GetParameterValue:
		f.Name = &c.Name
	case SubscribeToSignal:
		f.Name = &c.Name
	case SetParameterValue:
		if !isFinite(c.Value) {
			return nil, fmt.Errorf("%w: %s value %v is not finite", ErrInvalidCommand, c.Name, c.Value)
		}
		f.Name = &c.Name
		f.Value = &c.Value
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
	}
	return marshalFrame(f)
}

// EncodeResponse renders resp as one newline-terminated frame. Endpoints
// use it; clients only decode responses.
func EncodeResponse(resp Response) ([]byte, error) {
	switch r := resp.(type) {
	case Done:
		return marshalFrame(responseFrame{Type: RespDone})
	case Parameters:
		values := map[string]float64(r)
		if values == nil {
			values = map[string]float64{}
		}
		for name, v := range values {
			if !isFinite(v) {
				return nil, fmt.Errorf("%w: %s value %v is not finite", ErrMalformedFrame, name, v)
			}
		}
		// omitempty would drop an empty map, so write it out by hand.
		if len(values) == 0 {
			return []byte(`{"type":"Parameters","0":{}}` + "\n"), nil
		}
		return marshalFrame(responseFrame{Type: RespParameters, Values: values})
	default:
		return nil, fmt.Errorf("%w: response %T", ErrMalformedFrame, resp)
	}
}

func marshalFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, Delimiter), nil
}

// DecodeResponse parses one frame. Besides the tagged form written by
// EncodeResponse it accepts the externally tagged forms "Done" and
// {"Parameters":{...}}.
func DecodeResponse(frame []byte) (Response, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if !utf8.Valid(frame) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedFrame)
	}

	if frame[0] == '"' {
		var tag string
		if err := json.Unmarshal(frame, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if ResponseType(tag) == RespDone {
			return Done{}, nil
		}
		return nil, fmt.Errorf("%w: unknown response %q", ErrMalformedFrame, tag)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	rawTag, tagged := fields["type"]
	if !tagged {
		if values, ok := fields[string(RespParameters)]; ok && len(fields) == 1 {
			return decodeParameters(values)
		}
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedFrame)
	}

	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return nil, fmt.Errorf("%w: type tag: %v", ErrMalformedFrame, err)
	}
	switch ResponseType(tag) {
	case RespDone:
		return Done{}, nil
	case RespParameters:
		values, ok := fields[valuesField]
		if !ok {
			return nil, fmt.Errorf("%w: Parameters without values", ErrUnknownVariant)
		}
		return decodeParameters(values)
	default:
		return nil, fmt.Errorf("%w: unknown response %q", ErrMalformedFrame, tag)
	}
}

// DecodeCommand parses one outbound frame. Endpoints use it.
func DecodeCommand(frame []byte) (Command, error) {
	frame = bytes.TrimSpace(frame)
	if !utf8.Valid(frame) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedFrame)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	rawTag, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedFrame)
	}
	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return nil, fmt.Errorf("%w: type tag: %v", ErrMalformedFrame, err)
	}

	switch CommandType(tag) {
	case CmdListParameters:
		return ListParameters{}, nil
	case CmdListSignals:
		return ListSignals{}, nil
	case CmdCloseListenerThread:
		return CloseListenerThread{}, nil
	case CmdGetParameterValue:
		name, err := stringField(fields, "name", tag)
		if err != nil {
			return nil, err
		}
		return GetParameterValue{Name: name}, nil
	case CmdSubscribeToSignal:
		name, err := stringField(fields, "name", tag)
		if err != nil {
			return nil, err
		}
		return SubscribeToSignal{Name: name}, nil
	case CmdSetParameterValue:
		name, err := stringField(fields, "name", tag)
		if err != nil {
			return nil, err
		}
		raw, ok := fields["value"]
		if !ok {
			return nil, fmt.Errorf("%w: %s without value", ErrUnknownVariant, tag)
		}
		value, err := parseFinite(string(bytes.TrimSpace(raw)))
		if err != nil {
			return nil, err
		}
		return SetParameterValue{Name: name, Value: value}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedFrame, tag)
	}
}

func stringField(fields map[string]json.RawMessage, key, tag string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s without %s", ErrUnknownVariant, tag, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s.%s: %v", ErrMalformedFrame, tag, key, err)
	}
	return s, nil
}

// decodeParameters walks the values object token by token so that repeated
// names and non-numeric values are rejected instead of silently merged.
func decodeParameters(raw json.RawMessage) (Parameters, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedFrame, err)
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: Parameters without values", ErrUnknownVariant)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: parameters must be an object", ErrMalformedFrame)
	}

	params := Parameters{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedFrame, err)
		}
		name, _ := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %v", ErrMalformedFrame, name, err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q is not a number", ErrMalformedFrame, name)
		}
		v, err := parseFinite(num.String())
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		if _, dup := params[name]; dup {
			return nil, fmt.Errorf("%w: parameter %q repeated", ErrMalformedFrame, name)
		}
		params[name] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedFrame, err)
	}
	return params, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q: %v", ErrMalformedFrame, s, err)
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("%w: value %q is not finite", ErrMalformedFrame, s)
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
