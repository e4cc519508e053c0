package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Encode builds an application frame of the given kind. fields may be nil, a
// map, or any value that marshals to a JSON object; its "type" field, if any,
// is overwritten.
func Encode(kind string, fields any) ([]byte, error) {
	if kind == "" {
		return nil, ErrMissingType
	}

	obj := make(map[string]json.RawMessage)
	if fields != nil {
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal fields: %w", err)
		}
		if !bytes.Equal(data, []byte("null")) {
			if err := json.Unmarshal(data, &obj); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotObject, kind)
			}
		}
	}

	typeJSON, _ := json.Marshal(kind)
	obj["type"] = typeJSON

	return json.Marshal(obj)
}

// Marshal encodes one of the reserved frame structs.
func Marshal(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// Decode parses an inbound frame.
func Decode(data []byte, receivedAt time.Time) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	var kind string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, fmt.Errorf("decode type: %w", err)
		}
	}
	if kind == "" {
		return nil, ErrMissingType
	}

	env := &Envelope{
		Kind:       kind,
		Payload:    json.RawMessage(data),
		ReceivedAt: receivedAt,
		fields:     fields,
	}
	env.Channel = env.String("channel")

	return env, nil
}
