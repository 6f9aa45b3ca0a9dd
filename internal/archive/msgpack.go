package archive

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Ext type ids the checkpoint serializer uses for objects it cannot store as
// plain msgpack values.
const (
	extConstructorSingleArg int8 = 0
	extConstructorPosArgs   int8 = 1
	extConstructorKwArgs    int8 = 2
	extMethodSingleArg      int8 = 3
	extPydanticV1           int8 = 4
	extPydanticV2           int8 = 5
	extNumpyArray           int8 = 6
)

// constructed is an object the serializer stored as (module, name, payload, ...).
type constructed struct {
	fields map[string]any
}

func init() {
	for _, id := range []int8{
		extConstructorSingleArg,
		extConstructorPosArgs,
		extConstructorKwArgs,
		extMethodSingleArg,
		extPydanticV1,
		extPydanticV2,
		extNumpyArray,
	} {
		msgpack.RegisterExtDecoder(id, (*constructed)(nil), constructedDecoder(id))
	}
}

// constructedDecoder flattens an ext object into a map. Keyword and model
// payloads are merged into the map so a serialized message looks like
// {"type": "human", "content": ...}; other payloads land under "value".
func constructedDecoder(id int8) func(*msgpack.Decoder, reflect.Value, int) error {
	return func(d *msgpack.Decoder, v reflect.Value, _ int) error {
		parts, err := d.DecodeSlice()
		if err != nil {
			return fmt.Errorf("decode ext %d: %w", id, err)
		}
		fields := map[string]any{}
		if len(parts) > 0 {
			fields["lc_module"] = parts[0]
		}
		if len(parts) > 1 {
			fields["lc_name"] = parts[1]
		}
		if len(parts) > 2 {
			switch id {
			case extConstructorKwArgs, extPydanticV1, extPydanticV2:
				if kw, ok := normalizeMsgpack(parts[2]).(map[string]any); ok {
					for k, val := range kw {
						fields[k] = val
					}
				}
			case extConstructorPosArgs:
				fields["args"] = parts[2]
			default:
				fields["value"] = parts[2]
			}
		}

		c, _ := v.Interface().(*constructed)
		if c == nil {
			return fmt.Errorf("decode ext %d: unexpected target %s", id, v.Type())
		}
		c.fields = fields
		return nil
	}
}

// decodeMsgpack decodes a serialized checkpoint into the generic values
// encoding/json would produce. Only maps and arrays that consume the whole
// input are accepted.
func decodeMsgpack(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty msgpack payload")
	}
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("decode msgpack: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("decode msgpack: %d trailing bytes", r.Len())
	}
	out := normalizeMsgpack(v)
	switch out.(type) {
	case map[string]any, []any:
		return out, nil
	}
	return nil, fmt.Errorf("decode msgpack: top-level %T is not a map or array", v)
}

// normalizeMsgpack converts decoded msgpack values to JSON-like values:
// string-keyed maps, []any, float64 numbers.
func normalizeMsgpack(v any) any {
	switch t := v.(type) {
	case *constructed:
		if t == nil {
			return nil
		}
		return normalizeMsgpack(t.fields)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeMsgpack(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeMsgpack(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeMsgpack(val)
		}
		return out
	case []byte:
		return string(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case uint:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}
