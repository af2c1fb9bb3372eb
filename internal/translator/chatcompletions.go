package translator

import (
	"encoding/json"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// dialect B: chat-completions style. Turn container is messages[]; system
// prompt is role "system"; usage fields are prompt_tokens/completion_tokens.

type ccMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ccToolCall    `json:"tool_calls,omitempty"`
}

type ccToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type ccTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type ccRequest struct {
	Model    string      `json:"model"`
	Messages []ccMessage `json:"messages"`
	Stream   bool        `json:"stream,omitempty"`
	Tools    []ccTool    `json:"tools,omitempty"`
}

func parseChatCompletionsRequest(body []byte) ([]envelope.Turn, []envelope.ToolDescriptor, bool, string, error) {
	var req ccRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, false, "", err
	}

	turns := make([]envelope.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, envelope.Turn{
			Role:       envelope.Role(m.Role),
			Content:    envelope.Content{Text: decodeCCContent(m.Content)},
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}

	tools := make([]envelope.ToolDescriptor, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, envelope.ToolDescriptor{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	return turns, tools, req.Stream, req.Model, nil
}

func decodeCCContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Content may be an array of typed parts; flatten text parts.
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := ""
		for _, p := range parts {
			if p.Type == "text" {
				out += p.Text
			}
		}
		return out
	}
	return ""
}

func renderChatCompletionsRequest(messages []envelope.Turn, tools []envelope.ToolDescriptor, stream bool, model string) ([]byte, error) {
	req := ccRequest{Model: model, Stream: stream}
	for _, t := range messages {
		req.Messages = append(req.Messages, ccMessage{
			Role:       string(t.Role),
			Content:    mustMarshal(t.Content.String()),
			Name:       t.Name,
			ToolCallID: t.ToolCallID,
		})
	}
	for _, t := range tools {
		var ct ccTool
		ct.Type = "function"
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, ct)
	}
	return json.Marshal(req)
}

type ccChoice struct {
	Message struct {
		Content          string       `json:"content"`
		ReasoningContent string       `json:"reasoning_content,omitempty"`
		ToolCalls        []ccToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type ccResponse struct {
	Choices []ccChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseChatCompletionsResponse(body []byte) (*BufferedResponse, error) {
	var resp ccResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := &BufferedResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		out.Text = c.Message.Content
		out.ReasoningText = c.Message.ReasoningContent
		out.FinishReason = c.FinishReason
		for _, tc := range c.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCallInvocation{
				ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
			})
		}
	}
	return out, nil
}

func renderChatCompletionsResponse(resp *BufferedResponse, model string) ([]byte, error) {
	var out ccResponse
	var c ccChoice
	c.Message.Content = resp.Text
	c.FinishReason = "stop"
	if resp.FinishReason != "" {
		c.FinishReason = resp.FinishReason
	}
	for _, tc := range resp.ToolCalls {
		var w ccToolCall
		w.ID = tc.ID
		w.Type = "function"
		w.Function.Name = tc.Name
		w.Function.Arguments = tc.Arguments
		c.Message.ToolCalls = append(c.Message.ToolCalls, w)
	}
	out.Choices = []ccChoice{c}
	out.Usage.PromptTokens = resp.InputTokens
	out.Usage.CompletionTokens = resp.OutputTokens
	return json.Marshal(out)
}
