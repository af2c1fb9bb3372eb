// Package toolloop drives the bounded tool-execution loop: dispatch,
// detect a tool call in the reply, execute it, re-dispatch with the result
// appended, up to a fixed round limit.
package toolloop

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/tools"
)

const maxRounds = 3

// Caller dispatches one non-streaming completion round to a backend,
// returning both the rendered text and any natively-structured tool calls —
// implemented by internal/dispatcher.
type Caller interface {
	Complete(ctx context.Context, backend *envelope.Backend, messages []envelope.Turn, toolDefs []envelope.ToolDescriptor) (text string, native []tools.ToolCallInvocation, err error)
}

// Result is the loop's outcome after it settles on a final answer.
type Result struct {
	FinalText string
	Messages  []envelope.Turn
	Rounds    int
}

// Options configures the loop's optional auto-search salvage pass.
type Options struct {
	AutoSearchSalvage bool
}

// Run executes the tool loop against backend, starting from messages, with
// toolDefs offered to the model. Once maxRounds have executed, any further
// detected call is logged and ignored, and the last text reply is returned
// as final.
func Run(ctx context.Context, caller Caller, backend *envelope.Backend, messages []envelope.Turn, toolDefs []envelope.ToolDescriptor, opts Options) (*Result, error) {
	registry := tools.Default()
	conversation := append([]envelope.Turn{}, messages...)

	var lastText string
	rounds := 0
	for round := 0; round < maxRounds; round++ {
		text, native, err := caller.Complete(ctx, backend, conversation, toolDefs)
		if err != nil {
			return nil, err
		}
		lastText = text

		inv, found := tools.Detect(text, native, len(toolDefs) > 0)
		if !found {
			break
		}

		result, execErr := registry.Execute(inv.Name, inv.Args)
		if execErr != nil {
			result = "error: " + execErr.Error()
		}
		rounds++

		conversation = append(conversation,
			envelope.Turn{Role: envelope.RoleAssistant, Content: envelope.Content{Text: text}},
			envelope.Turn{Role: envelope.RoleTool, Name: inv.Name, Content: envelope.Content{Text: result}},
		)

		// Tool definitions are dropped from every follow-up dispatch once a
		// call has executed, forcing the model to use the result rather
		// than keep iterating.
		toolDefs = nil

		// The round limit is reached: one more completion is allowed to
		// let the model use the last tool result, but no further calls
		// are executed.
		if round == maxRounds-1 {
			text, native, err = caller.Complete(ctx, backend, conversation, nil)
			if err != nil {
				return nil, err
			}
			lastText = text
			if inv, found := tools.Detect(text, native, false); found {
				slog.Warn("tool loop round limit reached, ignoring further call", "tool", inv.Name)
			}
		}
	}

	if opts.AutoSearchSalvage {
		if salvaged, ok := trySalvage(ctx, caller, backend, conversation, lastText); ok {
			lastText = salvaged
		}
	}

	return &Result{FinalText: lastText, Messages: conversation, Rounds: rounds}, nil
}

var salvagePhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I (don't|do not) have (real-time|real time|live|access to current)`),
	regexp.MustCompile(`(?i)I'm not able to (browse|access) the internet`),
	regexp.MustCompile(`(?i)as an ai,? I (don't|cannot|can't) access`),
	regexp.MustCompile(`(?i)my (training data|knowledge) (has a cutoff|is limited|cuts off)`),
}

// trySalvage fires a best-effort web_search when the model's final answer
// admits it lacks live information, even though no tool call was made. It
// fails silently: any error just means the original apology stands.
func trySalvage(ctx context.Context, caller Caller, backend *envelope.Backend, conversation []envelope.Turn, finalText string) (string, bool) {
	admitsNoAccess := false
	for _, p := range salvagePhrases {
		if p.MatchString(finalText) {
			admitsNoAccess = true
			break
		}
	}
	if !admitsNoAccess {
		return "", false
	}

	topic := lastUserTopic(conversation)
	if topic == "" {
		return "", false
	}

	searchResult, err := tools.Default().Execute("web_search", map[string]interface{}{"query": topic})
	if err != nil {
		slog.Debug("auto-search salvage failed", "error", err)
		return "", false
	}

	salvageTurns := append(append([]envelope.Turn{}, conversation...),
		envelope.Turn{Role: envelope.RoleAssistant, Content: envelope.Content{Text: finalText}},
		envelope.Turn{Role: envelope.RoleTool, Name: "web_search", Content: envelope.Content{Text: searchResult}},
	)
	text, _, err := caller.Complete(ctx, backend, salvageTurns, nil)
	if err != nil {
		slog.Debug("auto-search salvage re-dispatch failed", "error", err)
		return "", false
	}
	return text, true
}

func lastUserTopic(messages []envelope.Turn) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == envelope.RoleUser {
			return strings.TrimSpace(messages[i].Content.String())
		}
	}
	return ""
}
