// Package translator converts between the three chat wire dialects and the
// gateway's internal envelope, both buffered and streaming.
package translator

import (
	"encoding/json"
	"fmt"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// RequestToInternal parses a wire-format request body in the given dialect
// into the internal envelope fields it carries (messages, tools, stream,
// model hint). A body that does not parse returns an error; the gateway's
// handler answers such a request with 400 and does not forward it upstream.
func RequestToInternal(dialect envelope.Dialect, body []byte) (messages []envelope.Turn, tools []envelope.ToolDescriptor, stream bool, model string, err error) {
	switch dialect {
	case envelope.DialectChatCompletions:
		return parseChatCompletionsRequest(body)
	case envelope.DialectMessages:
		return parseMessagesRequest(body)
	case envelope.DialectResponses:
		return parseResponsesRequest(body)
	default:
		return nil, nil, false, "", fmt.Errorf("unknown dialect: %s", dialect)
	}
}

// InternalToWireRequest renders the envelope's request fields as a wire
// body in the target dialect, for dispatch to an upstream backend.
func InternalToWireRequest(dialect envelope.Dialect, messages []envelope.Turn, tools []envelope.ToolDescriptor, stream bool, model string) ([]byte, error) {
	switch dialect {
	case envelope.DialectChatCompletions:
		return renderChatCompletionsRequest(messages, tools, stream, model)
	case envelope.DialectMessages:
		return renderMessagesRequest(messages, tools, stream, model)
	case envelope.DialectResponses:
		return renderResponsesRequest(messages, tools, stream, model)
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}
}

// BufferedResponse is the normalized shape of a complete (non-streaming)
// upstream answer, extracted from whichever dialect the backend speaks.
type BufferedResponse struct {
	Text            string
	ReasoningText   string
	ToolCalls       []ToolCallInvocation
	InputTokens     int
	OutputTokens    int
	FinishReason    string
}

// ToolCallInvocation is one tool call surfaced natively by an upstream
// response (detection tier 1 — see internal/tools for tiers 2/3).
type ToolCallInvocation struct {
	ID        string
	Name      string
	Arguments string // raw JSON object text
}

// ParseBufferedResponse extracts a normalized response from a complete
// wire-format body in the given upstream dialect.
func ParseBufferedResponse(dialect envelope.Dialect, body []byte) (*BufferedResponse, error) {
	switch dialect {
	case envelope.DialectChatCompletions:
		return parseChatCompletionsResponse(body)
	case envelope.DialectMessages:
		return parseMessagesResponse(body)
	case envelope.DialectResponses:
		return parseResponsesResponse(body)
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}
}

// RenderBufferedResponse renders a normalized response as a wire body in
// the client's dialect, after thinking-strip and footer have been applied
// to Text.
func RenderBufferedResponse(dialect envelope.Dialect, resp *BufferedResponse, model string) ([]byte, error) {
	switch dialect {
	case envelope.DialectChatCompletions:
		return renderChatCompletionsResponse(resp, model)
	case envelope.DialectMessages:
		return renderMessagesResponse(resp, model)
	case envelope.DialectResponses:
		return renderResponsesResponse(resp, model)
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
