package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// extObject encodes (module, name, payload, method) as the checkpoint
// serializer's ext type id.
func extObject(t *testing.T, id int8, module, name string, payload any, method string) msgpack.RawMessage {
	t.Helper()
	inner, err := msgpack.Marshal([]any{module, name, payload, method})
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeExtHeader(id, len(inner)))
	_, err = enc.Writer().Write(inner)
	require.NoError(t, err)
	return buf.Bytes()
}

func msgpackState(t *testing.T, messages ...any) []byte {
	t.Helper()
	data, err := msgpack.Marshal(map[string]any{
		"v":  1,
		"id": "1ef4f797-8335-6428-8001-8a1503f9b875",
		"channel_values": map[string]any{
			"messages": messages,
		},
	})
	require.NoError(t, err)
	return data
}

func TestDecodeCheckpoint_MsgpackPydanticMessages(t *testing.T) {
	ai := extObject(t, extPydanticV2, "langchain_core.messages.ai", "AIMessage", map[string]any{
		"type":    "ai",
		"content": "earlier answer",
	}, "model_validate_json")
	human := extObject(t, extPydanticV2, "langchain_core.messages.human", "HumanMessage", map[string]any{
		"type":              "human",
		"content":           "hi",
		"additional_kwargs": map[string]any{"timestamp": 1717000000.5, "time": "2024-05-29 16:26"},
	}, "model_validate_json")

	rv := rawField(t, bson.Binary{Subtype: 0, Data: msgpackState(t, ai, human)})
	p := DecodeCheckpoint(rv, SerializerMsgpack)

	require.Nil(t, p.JSON)
	require.NotNil(t, p.Msgpack)
	require.NotEmpty(t, p.Base64)

	msg, ok := firstHumanMessage(p.State())
	require.True(t, ok)
	require.Equal(t, "hi", msg.content)
	require.Equal(t, 1717000000.5, msg.timestamp)
	require.Equal(t, "2024-05-29 16:26", msg.time)

	root := p.Msgpack.(map[string]any)
	require.Equal(t, float64(1), root["v"])
	messages := root["channel_values"].(map[string]any)["messages"].([]any)
	require.Equal(t, "HumanMessage", messages[1].(map[string]any)["lc_name"])
}

func TestDecodeCheckpoint_MsgpackConstructors(t *testing.T) {
	data := msgpackState(t,
		extObject(t, extConstructorKwArgs, "langchain_core.messages.human", "HumanMessage", map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "part one"}, "part two"},
			"type":    "human",
		}, ""),
	)
	p := DecodeCheckpoint(rawField(t, bson.Binary{Data: data}), SerializerMsgpack)

	msg, ok := firstHumanMessage(p.State())
	require.True(t, ok)
	require.Equal(t, "part one\npart two", msg.content)

	uuidExt := extObject(t, extConstructorSingleArg, "uuid", "UUID", "0f3c", "")
	tuple := extObject(t, extConstructorPosArgs, "builtins", "tuple", []any{1, "x"}, "")
	data, err := msgpack.Marshal(map[string]any{"id": uuidExt, "pair": tuple})
	require.NoError(t, err)

	v, err := decodeMsgpack(data)
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"id":   map[string]any{"lc_module": "uuid", "lc_name": "UUID", "value": "0f3c"},
		"pair": map[string]any{"lc_module": "builtins", "lc_name": "tuple", "args": []any{float64(1), "x"}},
	}, v)
}

func TestDecodePayload_DetectsPlainMsgpack(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"channel_values": map[string]any{
			"messages": []any{map[string]any{"type": "human", "content": "hi"}},
		},
	})
	require.NoError(t, err)

	p := DecodePayload(rawField(t, bson.Binary{Data: data}))
	require.Nil(t, p.JSON)

	msg, ok := firstHumanMessage(p.State())
	require.True(t, ok)
	require.Equal(t, "hi", msg.content)
}

func TestDecodeCheckpoint_SerializerDecidesFormat(t *testing.T) {
	jsonBytes := []byte(`{"channel_values":{"messages":[{"type":"human","content":"from json"}]}}`)
	p := DecodeCheckpoint(rawField(t, bson.Binary{Data: jsonBytes}), SerializerJSON)
	require.NotNil(t, p.JSON)
	require.Nil(t, p.Msgpack)

	p = DecodeCheckpoint(rawField(t, bson.Binary{Data: jsonBytes}), SerializerMsgpack)
	require.Nil(t, p.JSON)
	require.Nil(t, p.Msgpack)
	require.Equal(t, string(jsonBytes), p.Text)
}

func TestDecodeMsgpack_Rejects(t *testing.T) {
	_, err := decodeMsgpack(nil)
	require.Error(t, err)

	_, err = decodeMsgpack([]byte{0x82, 0xa1, 0xff, 0xfe})
	require.Error(t, err, "truncated map")

	scalar, err := msgpack.Marshal("just text")
	require.NoError(t, err)
	_, err = decodeMsgpack(scalar)
	require.ErrorContains(t, err, "not a map or array")

	trailing, err := msgpack.Marshal([]any{1})
	require.NoError(t, err)
	_, err = decodeMsgpack(append(trailing, 0xc0))
	require.ErrorContains(t, err, "trailing bytes")
}
