package archive

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Serializer names stored in a checkpoint's type field.
const (
	SerializerJSON    = "json"
	SerializerMsgpack = "msgpack"
)

// Payload is a client-side rendering of a stored checkpoint value. Binary
// payloads are exposed as base64 and, when the bytes allow it, as text,
// decoded JSON or decoded msgpack.
type Payload struct {
	Kind    string `json:"kind"`
	Subtype byte   `json:"subtype,omitempty"`
	Base64  string `json:"base64,omitempty"`
	Text    string `json:"text,omitempty"`
	JSON    any    `json:"json,omitempty"`
	Msgpack any    `json:"msgpack,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// State returns the decoded checkpoint, whichever serializer produced it.
func (p Payload) State() any {
	if p.JSON != nil {
		return p.JSON
	}
	return p.Msgpack
}

// DecodeCheckpoint decodes a payload written by the named serializer. An
// empty or unknown serializer falls back to DecodePayload's detection.
func DecodeCheckpoint(rv bson.RawValue, serializer string) Payload {
	switch serializer {
	case SerializerMsgpack:
		p := DecodePayload(rv)
		p.JSON = nil
		if rv.Type == bson.TypeBinary {
			_, data := rv.Binary()
			v, err := decodeMsgpack(data)
			if err != nil {
				log.Warn("Failed to decode msgpack checkpoint", "err", err)
			}
			p.Msgpack = v
		}
		return p
	case SerializerJSON:
		p := DecodePayload(rv)
		p.Msgpack = nil
		return p
	default:
		return DecodePayload(rv)
	}
}

// DecodePayload converts a raw BSON value into a Payload. Binary bytes are
// tried as JSON first, then as msgpack. A zero RawValue (field missing)
// decodes as kind "missing".
func DecodePayload(rv bson.RawValue) Payload {
	if rv.IsZero() {
		return Payload{Kind: "missing"}
	}

	switch rv.Type {
	case bson.TypeBinary:
		subtype, data := rv.Binary()
		p := Payload{
			Kind:    rv.Type.String(),
			Subtype: subtype,
			Base64:  base64.StdEncoding.EncodeToString(data),
		}
		if utf8.Valid(data) {
			p.Text = string(data)
		}
		p.JSON = decodeJSON(data)
		if p.JSON == nil {
			p.Msgpack, _ = decodeMsgpack(data)
		}
		return p
	case bson.TypeString:
		s := rv.StringValue()
		return Payload{Kind: rv.Type.String(), Text: s, JSON: decodeJSON([]byte(s))}
	case bson.TypeNull, bson.TypeUndefined:
		return Payload{Kind: rv.Type.String()}
	default:
		p := Payload{Kind: rv.Type.String()}
		v, err := plainValue(rv)
		if err != nil {
			p.Text = rv.String()
			return p
		}
		p.Value = v
		return p
	}
}

// decodeJSON returns the decoded value of data, or nil when data is not a
// JSON object or array. Bare scalars are left as text.
func decodeJSON(data []byte) any {
	if len(data) == 0 || !json.Valid(data) {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	return nil
}

// plainValue converts any BSON value into the values encoding/json produces,
// going through relaxed extended JSON so dates and ObjectIDs stay readable.
func plainValue(rv bson.RawValue) (any, error) {
	data, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: rv}}, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s value: %w", rv.Type, err)
	}
	var wrapper struct {
		V any `json:"v"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to convert %s value: %w", rv.Type, err)
	}
	return wrapper.V, nil
}

// keyString renders a group key or identifier field as a string.
func keyString(rv bson.RawValue) string {
	if rv.IsZero() {
		return ""
	}
	if s, ok := rv.StringValueOK(); ok {
		return s
	}
	if rv.Type == bson.TypeNull {
		return ""
	}
	v, err := plainValue(rv)
	if err != nil {
		return rv.String()
	}
	return fmt.Sprint(v)
}
