// internal/ipc/codec.go
package ipc

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// wire is the codec for every frame. Numbers decode to json.Number so integer
// identifiers survive without float rounding.
var wire = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type frameKind string

const (
	kindEvent   frameKind = "event"
	kindRequest frameKind = "request"
	kindReply   frameKind = "reply"
)

// frame is the unit written to the wire.
type frame struct {
	Kind    frameKind `json:"kind"`
	ID      string    `json:"id,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Args    []any     `json:"args,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func encodeFrame(f *frame) ([]byte, error) {
	data, err := wire.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode %s frame on %q: %w", f.Kind, f.Channel, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := wire.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ipc: decode frame: %w", err)
	}
	switch f.Kind {
	case kindEvent, kindRequest, kindReply:
	default:
		return nil, fmt.Errorf("ipc: decode frame: unknown kind %q", f.Kind)
	}
	return &f, nil
}

// detach passes v through the codec. Values that reach a listener or handler
// are always plain data, never a live object from the sending side.
func detach(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := wire.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := wire.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func detachArgs(args []any) (Args, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out, err := detach(args)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode args: %w", err)
	}
	list, _ := out.([]any)
	return Args(list), nil
}

// Plain rewrites decoded numbers inside v into int64 when they are integral
// and float64 otherwise, descending into lists and objects. Other values are
// returned as they are.
func Plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Plain(e)
		}
		return out
	default:
		return v
	}
}
