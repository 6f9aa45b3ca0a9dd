package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decoded(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestFirstHumanMessage_PlainMessages(t *testing.T) {
	cp := decoded(t, `{"channel_values":{"messages":[
		{"type":"system","content":"be brief"},
		{"type":"human","content":"hello","additional_kwargs":{"timestamp":1717000000.5,"time":"2024-05-29 16:26"}},
		{"type":"human","content":"second"}
	]}}`)

	msg, ok := firstHumanMessage(cp)
	require.True(t, ok)
	require.Equal(t, "hello", msg.content)
	require.Equal(t, 1717000000.5, msg.timestamp)
	require.Equal(t, "2024-05-29 16:26", msg.time)
}

func TestFirstHumanMessage_LangchainConstructor(t *testing.T) {
	cp := decoded(t, `{"channel_values":{"messages":[
		{"lc":1,"type":"constructor","id":["langchain","schema","messages","AIMessage"],"kwargs":{"content":"hi!"}},
		{"lc":1,"type":"constructor","id":["langchain","schema","messages","HumanMessage"],
		 "kwargs":{"content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}}
	]}}`)

	msg, ok := firstHumanMessage(cp)
	require.True(t, ok)
	require.Equal(t, "part one\npart two", msg.content)
	require.Zero(t, msg.timestamp)
	require.Empty(t, msg.time)
}

func TestFirstHumanMessage_Missing(t *testing.T) {
	for _, cp := range []any{
		nil,
		decoded(t, `{}`),
		decoded(t, `{"channel_values":{}}`),
		decoded(t, `{"channel_values":{"messages":[{"type":"ai","content":"x"}]}}`),
	} {
		_, ok := firstHumanMessage(cp)
		require.False(t, ok)
	}
}
