// Package envelope defines the gateway's internal request/response
// representation — the union of capabilities every dialect translator
// converts to and from.
package envelope

import "time"

// Dialect identifies one of the three wire protocols the gateway speaks.
type Dialect string

const (
	DialectMessages        Dialect = "messages"         // A
	DialectChatCompletions Dialect = "chat-completions"  // B
	DialectResponses       Dialect = "responses"         // C
)

// Backend is a named upstream model server.
type Backend struct {
	Name           string   `yaml:"name" json:"name"`
	BaseURL        string   `yaml:"url" json:"url"`
	Dialect        Dialect  `yaml:"dialect" json:"dialect"`
	Specialties    []string `yaml:"specialties" json:"specialties"`
	ContextWindow  int      `yaml:"contextWindow" json:"contextWindow"`
	Speed          string   `yaml:"speed" json:"speed"`
	Cost           bool     `yaml:"cost" json:"cost"`
	Premium        bool     `yaml:"premium" json:"premium"`
	// PromptedToolCalling marks a backend with no native tool-call wire
	// format: tool definitions are folded into the system prompt instead of
	// sent as a structured field, and calls are recovered from the XML/
	// bare-JSON detection tiers. Defaults false (native tool calling).
	PromptedToolCalling bool   `yaml:"promptedToolCalling" json:"promptedToolCalling"`
	APIKey              string `yaml:"-" json:"-"`
}

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind discriminates the variants of Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// Part is one element of a turn's content when the content is not a bare
// string. Exactly the fields for Kind are meaningful.
type Part struct {
	Kind PartKind `json:"kind"`

	Text string `json:"text,omitempty"` // PartText

	ImageURL  string `json:"imageUrl,omitempty"`  // PartImage
	MediaType string `json:"mediaType,omitempty"` // PartImage

	ToolCallID   string `json:"toolCallId,omitempty"`   // PartToolCall, PartToolResult
	ToolName     string `json:"toolName,omitempty"`     // PartToolCall
	ToolArgsJSON string `json:"toolArgsJson,omitempty"` // PartToolCall, raw JSON object text

	ToolResultText string `json:"toolResultText,omitempty"` // PartToolResult
	ToolIsError    bool   `json:"toolIsError,omitempty"`    // PartToolResult
}

// Content is a turn's body: either plain text or an ordered sequence of
// typed parts. Exactly one of Text/Parts is populated.
type Content struct {
	Text  string
	Parts []Part
}

// IsText reports whether this content is the plain-string variant.
func (c Content) IsText() bool { return c.Parts == nil }

// String renders the content as flat text, concatenating part text and
// dropping non-text parts — used for classifier input and logging.
func (c Content) String() string {
	if c.IsText() {
		return c.Text
	}
	out := ""
	for _, p := range c.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// Turn is one message in the conversation.
type Turn struct {
	Role       Role      `json:"role"`
	Content    Content   `json:"content"`
	ToolCallID string    `json:"toolCallId,omitempty"` // set on role=tool turns
	Name       string    `json:"name,omitempty"`
}

// ToolDescriptor is a JSON-schema tool definition plus its handler name.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema object
}

// Category is the classifier's closed output set.
type Category string

const (
	CategoryGreetings    Category = "greetings"
	CategoryConversation Category = "conversation"
	CategoryCode         Category = "code"
	CategoryResearch     Category = "research"
	CategoryComplex      Category = "complex"
	CategoryRealtime     Category = "realtime"
	CategoryMulti        Category = "multi"
	CategoryUnclassified Category = "unclassified"
)

// Complexity is the classifier's estimate of task difficulty.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// VerdictSource names which classifier tier produced a verdict.
type VerdictSource string

const (
	SourceQuickRegex VerdictSource = "quick-regex"
	SourceFastModel  VerdictSource = "fast-model"
	SourceLLM        VerdictSource = "llm"
	SourceOverride   VerdictSource = "override"
)

// Verdict is the classifier's output for a single request.
type Verdict struct {
	Category          Category
	Confidence        float64
	Complexity        Complexity
	Keywords          []string
	SuggestedBackends []string
	Reasoning         string
	Source            VerdictSource
	RetryWithSearch   bool
}

// Candidate is one scored backend considered by the router.
type Candidate struct {
	Backend string
	Score   float64
}

// RoutingDecision is the router's output for a single request.
type RoutingDecision struct {
	Primary      string
	AllBackends  []string
	Reason       string
	Confidence   float64
	Candidates   []Candidate
	ToolsRouted  bool
	MultiModel   bool
}

// ErrorRecord captures a pipeline failure attached to an envelope.
type ErrorRecord struct {
	Kind       string
	Message    string
	StatusCode int
	Cancelled  bool
}

// TokenCounts is monotonic usage accounting; fields only ever increase.
type TokenCounts struct {
	Input  int
	Output int
	Total  int
}

// Request is the pipeline's internal representation of one inbound call,
// carried end-to-end from classification through response translation.
type Request struct {
	ID               string
	StartedAt        time.Time
	ClientDialect    Dialect
	Messages         []Turn
	Tools            []ToolDescriptor
	Stream           bool
	ModelHint        string
	UserID           string

	Verdict *Verdict
	Routing *RoutingDecision

	FormatConversionFailed bool

	Tokens TokenCounts
	Error  *ErrorRecord

	// CLIShortCircuit is set when the request was a proxy-cli command;
	// no upstream dispatch occurs and Backend reports "proxy-cli".
	CLIShortCircuit bool
}

// Elapsed returns milliseconds since the request began.
func (r *Request) Elapsed() int64 {
	return time.Since(r.StartedAt).Milliseconds()
}
