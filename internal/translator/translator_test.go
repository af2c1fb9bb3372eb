package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

func TestChatCompletionsRoundTrip(t *testing.T) {
	messages := []envelope.Turn{
		{Role: envelope.RoleSystem, Content: envelope.Content{Text: "be terse"}},
		{Role: envelope.RoleUser, Content: envelope.Content{Text: "hello"}},
	}
	wire, err := InternalToWireRequest(envelope.DialectChatCompletions, messages, nil, false, "test-model")
	require.NoError(t, err)

	parsed, _, _, model, err := RequestToInternal(envelope.DialectChatCompletions, wire)
	require.NoError(t, err)
	assert.Equal(t, "test-model", model)
	require.Len(t, parsed, 2)
	assert.Equal(t, "hello", parsed[1].Content.String())
}

func TestMessagesRoundTrip(t *testing.T) {
	messages := []envelope.Turn{
		{Role: envelope.RoleSystem, Content: envelope.Content{Text: "be terse"}},
		{Role: envelope.RoleUser, Content: envelope.Content{Text: "hello"}},
	}
	wire, err := InternalToWireRequest(envelope.DialectMessages, messages, nil, false, "test-model")
	require.NoError(t, err)

	parsed, _, _, _, err := RequestToInternal(envelope.DialectMessages, wire)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, envelope.RoleSystem, parsed[0].Role)
	assert.Equal(t, "hello", parsed[1].Content.String())
}

func TestResponsesRoundTrip(t *testing.T) {
	messages := []envelope.Turn{
		{Role: envelope.RoleUser, Content: envelope.Content{Text: "hello"}},
	}
	wire, err := InternalToWireRequest(envelope.DialectResponses, messages, nil, false, "test-model")
	require.NoError(t, err)

	parsed, _, _, _, err := RequestToInternal(envelope.DialectResponses, wire)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "hello", parsed[0].Content.String())
}

func TestBufferedResponseRoundTripPreservesTextModuloFooter(t *testing.T) {
	resp := &BufferedResponse{Text: "the answer is 42"}
	wire, err := RenderBufferedResponse(envelope.DialectChatCompletions, resp, "model-a")
	require.NoError(t, err)

	back, err := ParseBufferedResponse(envelope.DialectChatCompletions, wire)
	require.NoError(t, err)
	assert.Equal(t, resp.Text, back.Text)
}

func TestStripThinkingBufferedUsesReasoningContentWhenTextEmpty(t *testing.T) {
	reasoning := "The user is asking about tank sizing. Let me provide a recommendation. For a 50-gallon tank, use a 300W heater."
	out := StripThinkingBuffered("", reasoning)
	assert.Equal(t, "For a 50-gallon tank, use a 300W heater.", out)
	assert.NotContains(t, out, "The user is asking")
	assert.NotContains(t, out, "Let me provide a recommendation")
}

func TestAppendAttributionFooter(t *testing.T) {
	out := AppendAttributionFooter("hi", "llama-3.1-70b-q4_k_m")
	assert.Contains(t, out, "_[via llama-3.1-70b]_")
}

func TestStreamCoroutineChatCompletionsEmitsDoneSentinel(t *testing.T) {
	c := NewStreamCoroutine(envelope.DialectChatCompletions, envelope.DialectChatCompletions, "model-a")
	_, err := c.Feed("", []byte(`{"choices":[{"delta":{"content":"hi"}}]}`))
	require.NoError(t, err)
	out, err := c.Feed("", []byte(`[DONE]`))
	require.NoError(t, err)
	joined := ""
	for _, chunk := range out {
		joined += string(chunk)
	}
	assert.Contains(t, joined, "[DONE]")
}

func TestStreamCoroutineAbortIsIdempotentAfterFinish(t *testing.T) {
	c := NewStreamCoroutine(envelope.DialectChatCompletions, envelope.DialectChatCompletions, "model-a")
	_ = c.Finish()
	out := c.Abort()
	assert.Empty(t, out)
}
