package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// State is the streaming coroutine's explicit lifecycle, per the design
// note that a stateful streaming translator should be modeled as a state
// machine rather than ad hoc callback chains.
type State string

const (
	StateInit             State = "init"
	StateInProgress       State = "in-progress"
	StateThinkingBuffered State = "thinking-buffered"
	StateStreaming        State = "streaming"
	StateDone             State = "done"
)

// upstreamEvent is the normalized shape every dialect's SSE parser reduces
// to before the coroutine applies thinking-strip and re-emits in the
// client's dialect.
type upstreamEvent struct {
	textDelta string
	done      bool
}

// StreamCoroutine consumes upstream chunks in one dialect and produces
// client-dialect chunks, one Feed call per upstream chunk. It is not safe
// for concurrent use — exactly one goroutine drives it per request, per the
// concurrency model's "sequential within a request" rule.
type StreamCoroutine struct {
	upstream envelope.Dialect
	client   envelope.Dialect
	model    string

	state       State
	isReasoning bool
	thinking    *thinkingBuffer

	responseID string
	textSoFar  strings.Builder
}

// NewStreamCoroutine builds a coroutine translating from upstream to client
// dialect for a single request using the declared model (for the reasoning
// heuristic and attribution footer).
func NewStreamCoroutine(upstream, client envelope.Dialect, model string) *StreamCoroutine {
	return &StreamCoroutine{
		upstream:    upstream,
		client:      client,
		model:       model,
		state:       StateInit,
		isReasoning: IsReasoningModel(model),
		responseID: "resp_" + uuid.NewString(),
	}
}

// Feed parses one upstream SSE event (eventType is "" for dialects that
// don't use named events) and returns zero or more client-dialect chunks to
// write downstream.
func (c *StreamCoroutine) Feed(eventType string, data []byte) ([][]byte, error) {
	ev, err := parseUpstreamEvent(c.upstream, eventType, data)
	if err != nil {
		return nil, fmt.Errorf("stream parse failed: %w", err)
	}

	var out [][]byte
	if c.state == StateInit {
		out = append(out, c.emitInit()...)
		c.state = StateInProgress
	}

	if ev.textDelta != "" {
		if c.isReasoning && c.state != StateStreaming {
			c.state = StateThinkingBuffered
			if c.thinking == nil {
				c.thinking = &thinkingBuffer{}
			}
			if emit, found := c.thinking.feed(ev.textDelta); found {
				c.state = StateStreaming
				out = append(out, c.emitTextDelta(emit)...)
				c.textSoFar.WriteString(emit)
			}
		} else {
			c.state = StateStreaming
			out = append(out, c.emitTextDelta(ev.textDelta)...)
			c.textSoFar.WriteString(ev.textDelta)
		}
	}

	if ev.done {
		out = append(out, c.Finish()...)
	}
	return out, nil
}

// Finish emits the footer delta and terminal lifecycle events. Safe to call
// more than once; only the first call produces output.
func (c *StreamCoroutine) Finish() [][]byte {
	if c.state == StateDone {
		return nil
	}
	var out [][]byte
	if footer := footerSuffix(c.model); footer != "" {
		out = append(out, c.emitTextDelta(footer)...)
	}
	out = append(out, c.emitTerminal()...)
	c.state = StateDone
	return out
}

// Abort reconstructs a terminal "done" event from partial state, used when
// the upstream connection errors or the client disconnects mid-stream.
func (c *StreamCoroutine) Abort() [][]byte {
	if c.state == StateDone {
		return nil
	}
	out := c.emitTerminal()
	c.state = StateDone
	return out
}

func footerSuffix(model string) string {
	short := ShortModelName(model)
	if short == "" {
		return ""
	}
	return "\n\n_[via " + short + "]_"
}

// --- upstream parsing ---

func parseUpstreamEvent(dialect envelope.Dialect, eventType string, data []byte) (upstreamEvent, error) {
	text := strings.TrimSpace(string(data))
	if text == "[DONE]" {
		return upstreamEvent{done: true}, nil
	}

	switch dialect {
	case envelope.DialectChatCompletions:
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(data, &chunk); err != nil {
			return upstreamEvent{}, err
		}
		var ev upstreamEvent
		if len(chunk.Choices) > 0 {
			ev.textDelta = chunk.Choices[0].Delta.Content
			if chunk.Choices[0].FinishReason != nil {
				ev.done = true
			}
		}
		return ev, nil

	case envelope.DialectMessages:
		switch eventType {
		case "content_block_delta":
			var payload struct {
				Delta struct {
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return upstreamEvent{}, err
			}
			return upstreamEvent{textDelta: payload.Delta.Text}, nil
		case "message_stop":
			return upstreamEvent{done: true}, nil
		default:
			return upstreamEvent{}, nil
		}

	case envelope.DialectResponses:
		switch eventType {
		case "response.output_text.delta":
			var payload struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return upstreamEvent{}, err
			}
			return upstreamEvent{textDelta: payload.Delta}, nil
		case "response.completed", "response.done":
			return upstreamEvent{done: true}, nil
		default:
			return upstreamEvent{}, nil
		}

	default:
		return upstreamEvent{}, fmt.Errorf("unknown upstream dialect: %s", dialect)
	}
}

// --- client-dialect emission ---

func (c *StreamCoroutine) emitInit() [][]byte {
	if c.client != envelope.DialectResponses {
		return nil
	}
	created := mustMarshal(map[string]interface{}{
		"type":     "response.created",
		"response": map[string]interface{}{"id": c.responseID, "model": c.model},
	})
	added := mustMarshal(map[string]interface{}{
		"type": "response.output_item.added",
		"item": map[string]interface{}{"id": c.responseID + "-item-0", "type": "message"},
	})
	return [][]byte{sseFrame("", created), sseFrame("", added)}
}

func (c *StreamCoroutine) emitTextDelta(delta string) [][]byte {
	switch c.client {
	case envelope.DialectChatCompletions:
		frame := mustMarshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]interface{}{"content": delta}}},
		})
		return [][]byte{sseFrame("", frame)}

	case envelope.DialectMessages:
		frame := mustMarshal(map[string]interface{}{
			"delta": map[string]interface{}{"type": "text_delta", "text": delta},
		})
		return [][]byte{sseFrame("content_block_delta", frame)}

	case envelope.DialectResponses:
		frame := mustMarshal(map[string]interface{}{"delta": delta})
		return [][]byte{sseFrame("response.output_text.delta", frame)}
	}
	return nil
}

func (c *StreamCoroutine) emitTerminal() [][]byte {
	switch c.client {
	case envelope.DialectChatCompletions:
		final := mustMarshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]interface{}{}, "finish_reason": "stop"}},
		})
		return [][]byte{sseFrame("", final), []byte("data: [DONE]\n\n")}

	case envelope.DialectMessages:
		return [][]byte{sseFrame("message_stop", mustMarshal(map[string]interface{}{"type": "message_stop"}))}

	case envelope.DialectResponses:
		textDone := mustMarshal(map[string]interface{}{"text": c.textSoFar.String()})
		itemDone := mustMarshal(map[string]interface{}{"item": map[string]interface{}{"id": c.responseID + "-item-0"}})
		respDone := mustMarshal(map[string]interface{}{"response": map[string]interface{}{"id": c.responseID}})
		return [][]byte{
			sseFrame("response.output_text.done", textDone),
			sseFrame("response.output_item.done", itemDone),
			sseFrame("response.done", respDone),
		}
	}
	return nil
}

func sseFrame(event string, data []byte) []byte {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: ")
		sb.WriteString(event)
		sb.WriteString("\n")
	}
	sb.WriteString("data: ")
	sb.Write(data)
	sb.WriteString("\n\n")
	return []byte(sb.String())
}
