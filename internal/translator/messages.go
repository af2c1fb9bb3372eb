package translator

import (
	"encoding/json"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// dialect A: messages-style. Turn container is messages[]; system prompt is
// a sibling "system" field; usage fields are input_tokens/output_tokens.

type msgBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

type msgTurn struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type msgTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type msgRequest struct {
	Model    string    `json:"model"`
	System   string    `json:"system,omitempty"`
	Messages []msgTurn `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	Tools    []msgTool `json:"tools,omitempty"`
}

func parseMessagesRequest(body []byte) ([]envelope.Turn, []envelope.ToolDescriptor, bool, string, error) {
	var req msgRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, false, "", err
	}

	turns := make([]envelope.Turn, 0, len(req.Messages)+1)
	if req.System != "" {
		turns = append(turns, envelope.Turn{Role: envelope.RoleSystem, Content: envelope.Content{Text: req.System}})
	}
	for _, m := range req.Messages {
		turns = append(turns, envelope.Turn{Role: envelope.Role(m.Role), Content: envelope.Content{Text: decodeMessagesContent(m.Content)}})
	}

	tools := make([]envelope.ToolDescriptor, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, envelope.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	return turns, tools, req.Stream, req.Model, nil
}

func decodeMessagesContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []msgBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}

func renderMessagesRequest(messages []envelope.Turn, tools []envelope.ToolDescriptor, stream bool, model string) ([]byte, error) {
	req := msgRequest{Model: model, Stream: stream}
	for _, t := range messages {
		if t.Role == envelope.RoleSystem {
			req.System += t.Content.String()
			continue
		}
		req.Messages = append(req.Messages, msgTurn{Role: string(t.Role), Content: mustMarshal(t.Content.String())})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, msgTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return json.Marshal(req)
}

type msgResponse struct {
	Content    []msgBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseMessagesResponse(body []byte) (*BufferedResponse, error) {
	var resp msgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := &BufferedResponse{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		FinishReason: resp.StopReason,
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			out.Text += b.Text
		case "tool_use":
			argsJSON, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCallInvocation{ID: b.ID, Name: b.Name, Arguments: string(argsJSON)})
		}
	}
	return out, nil
}

func renderMessagesResponse(resp *BufferedResponse, model string) ([]byte, error) {
	var out msgResponse
	if resp.Text != "" {
		out.Content = append(out.Content, msgBlock{Type: "text", Text: resp.Text})
	}
	for _, tc := range resp.ToolCalls {
		var input map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Arguments), &input)
		out.Content = append(out.Content, msgBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
	}
	out.StopReason = "end_turn"
	if resp.FinishReason != "" {
		out.StopReason = resp.FinishReason
	}
	out.Usage.InputTokens = resp.InputTokens
	out.Usage.OutputTokens = resp.OutputTokens
	return json.Marshal(out)
}
