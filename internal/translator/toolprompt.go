package translator

import (
	"fmt"
	"strings"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// InjectToolsIntoSystemPrompt synthesizes tool definitions into a system
// prompt paragraph for backends that lack native tool calling, instructing
// the model to emit an XML-wrapped JSON call when it wants to use one.
func InjectToolsIntoSystemPrompt(messages []envelope.Turn, tools []envelope.ToolDescriptor) []envelope.Turn {
	if len(tools) == 0 {
		return messages
	}

	var sb strings.Builder
	sb.WriteString("You have access to the following tools. To use one, respond with ")
	sb.WriteString("exactly one <tool_call>{\"name\": \"...\", \"arguments\": {...}}</tool_call> block ")
	sb.WriteString("and nothing else.\n\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	paragraph := sb.String()

	out := make([]envelope.Turn, 0, len(messages)+1)
	injected := false
	for _, m := range messages {
		if m.Role == envelope.RoleSystem && !injected {
			m.Content.Text = m.Content.Text + "\n\n" + paragraph
			injected = true
		}
		out = append(out, m)
	}
	if !injected {
		out = append([]envelope.Turn{{Role: envelope.RoleSystem, Content: envelope.Content{Text: paragraph}}}, out...)
	}
	return out
}
