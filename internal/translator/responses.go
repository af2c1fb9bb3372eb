package translator

import (
	"encoding/json"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// dialect C: responses-style. Turn container is "input" (string or array)
// plus "instructions"; usage fields are input_tokens/output_tokens/total.

type respInputItem struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type respTool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type respRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions,omitempty"`
	Input        json.RawMessage `json:"input"`
	Stream       bool            `json:"stream,omitempty"`
	Tools        []respTool      `json:"tools,omitempty"`
}

func parseResponsesRequest(body []byte) ([]envelope.Turn, []envelope.ToolDescriptor, bool, string, error) {
	var req respRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, false, "", err
	}

	turns := make([]envelope.Turn, 0)
	if req.Instructions != "" {
		turns = append(turns, envelope.Turn{Role: envelope.RoleSystem, Content: envelope.Content{Text: req.Instructions}})
	}

	var asString string
	if err := json.Unmarshal(req.Input, &asString); err == nil {
		turns = append(turns, envelope.Turn{Role: envelope.RoleUser, Content: envelope.Content{Text: asString}})
	} else {
		var items []respInputItem
		if err := json.Unmarshal(req.Input, &items); err == nil {
			for _, it := range items {
				role := it.Role
				if role == "developer" {
					role = string(envelope.RoleSystem)
				}
				turns = append(turns, envelope.Turn{Role: envelope.Role(role), Content: envelope.Content{Text: decodeResponsesContent(it.Content)}})
			}
		}
	}

	tools := make([]envelope.ToolDescriptor, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, envelope.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	return turns, tools, req.Stream, req.Model, nil
}

func decodeResponsesContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := ""
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return ""
}

func renderResponsesRequest(messages []envelope.Turn, tools []envelope.ToolDescriptor, stream bool, model string) ([]byte, error) {
	req := respRequest{Model: model, Stream: stream}

	var items []respInputItem
	for _, t := range messages {
		if t.Role == envelope.RoleSystem {
			if req.Instructions != "" {
				req.Instructions += "\n"
			}
			req.Instructions += t.Content.String()
			continue
		}
		items = append(items, respInputItem{Role: string(t.Role), Content: mustMarshal(t.Content.String())})
	}
	inputJSON, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	req.Input = inputJSON

	for _, t := range tools {
		req.Tools = append(req.Tools, respTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return json.Marshal(req)
}

type respOutputItem struct {
	Type      string `json:"type"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
}

type respResponse struct {
	Output []respOutputItem `json:"output"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func parseResponsesResponse(body []byte) (*BufferedResponse, error) {
	var resp respResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := &BufferedResponse{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				out.Text += c.Text
			}
		case "function_call":
			out.ToolCalls = append(out.ToolCalls, ToolCallInvocation{ID: item.CallID, Name: item.Name, Arguments: item.Arguments})
		}
	}
	return out, nil
}

func renderResponsesResponse(resp *BufferedResponse, model string) ([]byte, error) {
	var out respResponse
	if resp.Text != "" {
		item := respOutputItem{Type: "message"}
		item.Content = append(item.Content, struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "output_text", Text: resp.Text})
		out.Output = append(out.Output, item)
	}
	for _, tc := range resp.ToolCalls {
		out.Output = append(out.Output, respOutputItem{Type: "function_call", Name: tc.Name, Arguments: tc.Arguments, CallID: tc.ID})
	}
	out.Usage.InputTokens = resp.InputTokens
	out.Usage.OutputTokens = resp.OutputTokens
	out.Usage.TotalTokens = resp.InputTokens + resp.OutputTokens
	return json.Marshal(out)
}
