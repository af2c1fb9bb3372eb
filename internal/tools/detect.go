package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Invocation is one detected tool call, regardless of which tier found it.
type Invocation struct {
	Name string
	Args map[string]interface{}
}

var xmlToolCallPattern = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// DetectNative extracts invocations already parsed into structured
// tool calls by the dialect translator (native tool calling in dialects A,
// B and C).
func DetectNative(raw []ToolCallInvocation) []Invocation {
	out := make([]Invocation, 0, len(raw))
	for _, tc := range raw {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			continue
		}
		out = append(out, Invocation{Name: tc.Name, Args: args})
	}
	return out
}

// ToolCallInvocation mirrors translator.ToolCallInvocation's shape without
// importing the translator package, to avoid a tools->translator cycle.
type ToolCallInvocation struct {
	ID        string
	Name      string
	Arguments string
}

// DetectXML looks for a single <tool_call>{...}</tool_call> block embedded
// in plain text, the fallback form used by backends with no native tool
// calling once a tool-use paragraph has been injected into the system
// prompt.
func DetectXML(text string) (*Invocation, bool) {
	m := xmlToolCallPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseCallJSON(m[1])
}

// DetectBareJSON looks for a bare JSON object response that looks like a
// tool call — guarded to only fire when tools were actually offered, and
// requiring at least two recognizable keys, so a model's ordinary JSON
// answer to a user's question is never mistaken for a call.
func DetectBareJSON(text string, toolsOffered bool) (*Invocation, bool) {
	if !toolsOffered {
		return nil, false
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	return parseCallJSON(trimmed)
}

func parseCallJSON(s string) (*Invocation, bool) {
	var payload struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
		Tool      string                 `json:"tool"`
		Params    map[string]interface{} `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, false
	}

	name := payload.Name
	if name == "" {
		name = payload.Tool
	}
	args := payload.Arguments
	if args == nil {
		args = payload.Params
	}

	keyCount := 0
	if name != "" {
		keyCount++
	}
	if args != nil {
		keyCount++
	}
	if keyCount < 2 {
		return nil, false
	}
	return &Invocation{Name: name, Args: args}, true
}

// Detect runs the three tiers in order — native, then XML-wrapped, then
// bare-JSON — and returns the first match, since any one representation
// fully determines the call.
func Detect(text string, native []ToolCallInvocation, toolsOffered bool) (*Invocation, bool) {
	if nativeCalls := DetectNative(native); len(nativeCalls) > 0 {
		return &nativeCalls[0], true
	}
	if inv, ok := DetectXML(text); ok {
		return inv, true
	}
	return DetectBareJSON(text, toolsOffered)
}
