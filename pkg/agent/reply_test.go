package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &data))
	return data
}

func TestExtractReplySessionShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message content", `{"message": {"content": "hello"}}`, "hello"},
		{"response output", `{"response": {"output": "out"}}`, "out"},
		{"response output_text", `{"response": {"output_text": "ot"}}`, "ot"},
		{"nested data", `{"data": {"message": {"content": "deep"}}}`, "deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractReply(decode(t, tt.body), sessionReplyPaths)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractReplyEndpointShapes(t *testing.T) {
	body := decode(t, `{"choices": [{"message": {"content": "hi"}}]}`)
	got := extractReply(body, endpointReplyPaths, sessionReplyPaths)
	assert.Equal(t, "hi", got)

	body = decode(t, `{"choices": [{"text": "plain"}]}`)
	got = extractReply(body, endpointReplyPaths, sessionReplyPaths)
	assert.Equal(t, "plain", got)

	// Endpoint deployments may still answer in the general agent shape.
	body = decode(t, `{"message": {"content": "fallback"}}`)
	got = extractReply(body, endpointReplyPaths, sessionReplyPaths)
	assert.Equal(t, "fallback", got)
}

func TestExtractReplyDegradesToStringifiedBody(t *testing.T) {
	body := decode(t, `{"foo": "bar"}`)
	got := extractReply(body, sessionReplyPaths)
	assert.Contains(t, got, "foo")
	assert.Contains(t, got, "bar")
}

func TestExtractReplyIsPure(t *testing.T) {
	body := decode(t, `{"message": {"content": "same"}}`)
	first := extractReply(body, sessionReplyPaths)
	second := extractReply(body, sessionReplyPaths)
	assert.Equal(t, first, second)
}

func TestExtractReplySkipsNonStringLeaves(t *testing.T) {
	// A matching path whose leaf is not a string must not win.
	body := decode(t, `{"message": {"content": 42}, "response": {"output": "real"}}`)
	got := extractReply(body, sessionReplyPaths)
	assert.Equal(t, "real", got)
}

func TestTraverseArrayBounds(t *testing.T) {
	body := decode(t, `{"choices": []}`)
	_, ok := traverse(body, []string{"choices", "0", "text"})
	assert.False(t, ok)

	_, ok = traverse(body, []string{"choices", "-1"})
	assert.False(t, ok)
}
