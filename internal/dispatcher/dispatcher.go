// Package dispatcher sends translated requests to upstream backends over
// HTTP, buffered or streaming, and reports backend health as it goes.
package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/health"
	"github.com/apellegr/llm-gateway/internal/tools"
	"github.com/apellegr/llm-gateway/internal/translator"
)

const defaultTimeout = 120 * time.Second

// Service dispatches wire requests to backends and tracks their health.
type Service struct {
	client  *http.Client
	health  *health.Service
}

// New builds a dispatcher. health may be nil, in which case no health
// reporting happens.
func New(healthSvc *health.Service) *Service {
	return &Service{
		client: &http.Client{Timeout: defaultTimeout},
		health: healthSvc,
	}
}

// SimpleComplete implements classifier.Caller: a bounded, single-turn,
// non-streaming completion used by the classifier's fast-model and LLM
// tiers.
func (s *Service) SimpleComplete(ctx context.Context, backend *envelope.Backend, systemPrompt, userPrompt string) (string, error) {
	messages := []envelope.Turn{
		{Role: envelope.RoleSystem, Content: envelope.Content{Text: systemPrompt}},
		{Role: envelope.RoleUser, Content: envelope.Content{Text: userPrompt}},
	}
	text, _, err := s.Complete(ctx, backend, messages, nil)
	return text, err
}

// Complete implements toolloop.Caller: one buffered round-trip, returning
// the rendered text and any natively-structured tool calls.
func (s *Service) Complete(ctx context.Context, backend *envelope.Backend, messages []envelope.Turn, toolDefs []envelope.ToolDescriptor) (string, []tools.ToolCallInvocation, error) {
	wireTools := toolDefs
	if backend.PromptedToolCalling && len(toolDefs) > 0 {
		messages = translator.InjectToolsIntoSystemPrompt(messages, toolDefs)
		wireTools = nil
	}

	wireBody, err := translator.InternalToWireRequest(backend.Dialect, messages, wireTools, false, backend.Name)
	if err != nil {
		return "", nil, fmt.Errorf("encode request for %s: %w", backend.Name, err)
	}

	respBody, err := s.send(ctx, backend, wireBody)
	if err != nil {
		return "", nil, err
	}

	parsed, err := translator.ParseBufferedResponse(backend.Dialect, respBody)
	if err != nil {
		return "", nil, fmt.Errorf("parse response from %s: %w", backend.Name, err)
	}

	native := make([]tools.ToolCallInvocation, 0, len(parsed.ToolCalls))
	for _, tc := range parsed.ToolCalls {
		native = append(native, tools.ToolCallInvocation{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}

	text := parsed.Text
	if text == "" && parsed.ReasoningText != "" {
		text = translator.StripThinkingBuffered(parsed.Text, parsed.ReasoningText)
	}

	return text, native, nil
}

// send performs one buffered POST against backend and returns the raw
// response body, reporting health outcomes along the way.
func (s *Service) send(ctx context.Context, backend *envelope.Backend, wireBody []byte) ([]byte, error) {
	req, err := s.buildRequest(ctx, backend, wireBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.reportFailure(backend.Name, err.Error(), 0)
		return nil, fmt.Errorf("request to %s failed: %w", backend.Name, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("read response from %s: %w", backend.Name, readErr)
	}

	if resp.StatusCode >= 400 {
		s.reportFailure(backend.Name, string(body), resp.StatusCode)
		return nil, fmt.Errorf("backend %s returned status %d: %s", backend.Name, resp.StatusCode, truncate(string(body), 300))
	}

	s.reportSuccess(backend.Name)
	return body, nil
}

// StreamDispatch opens a streaming request and returns the raw response
// body for the caller to iterate with IterateSSE. The caller owns closing
// the returned body.
func (s *Service) StreamDispatch(ctx context.Context, backend *envelope.Backend, messages []envelope.Turn, toolDefs []envelope.ToolDescriptor) (io.ReadCloser, error) {
	wireBody, err := translator.InternalToWireRequest(backend.Dialect, messages, toolDefs, true, backend.Name)
	if err != nil {
		return nil, fmt.Errorf("encode streaming request for %s: %w", backend.Name, err)
	}

	req, err := s.buildRequest(ctx, backend, wireBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.reportFailure(backend.Name, err.Error(), 0)
		return nil, fmt.Errorf("streaming request to %s failed: %w", backend.Name, err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		s.reportFailure(backend.Name, string(body), resp.StatusCode)
		return nil, fmt.Errorf("backend %s returned status %d: %s", backend.Name, resp.StatusCode, truncate(string(body), 300))
	}

	s.reportSuccess(backend.Name)
	return resp.Body, nil
}

const anthropicVersion = "2023-06-01"

// buildRequest authenticates per backend: the premium backend speaks
// dialect A's keyed header pair (x-api-key/anthropic-version), every other
// backend gets a placeholder bearer token.
func (s *Service) buildRequest(ctx context.Context, backend *envelope.Backend, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", backend.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if backend.Premium {
		req.Header.Set("x-api-key", backend.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	} else {
		req.Header.Set("Authorization", "Bearer "+backend.APIKey)
	}
	return req, nil
}

func (s *Service) reportFailure(name, body string, status int) {
	if s.health == nil {
		return
	}
	s.health.MarkUnhealthy(name, body, status)
}

func (s *Service) reportSuccess(name string) {
	if s.health == nil {
		return
	}
	s.health.MarkHealthy(name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SSEEvent is one parsed Server-Sent Event frame.
type SSEEvent struct {
	Event string
	Data  []byte
}

// IterateSSE reads "event:"/"data:" frames from r, calling fn for each
// complete frame, following the teacher's pattern of a large scan buffer to
// tolerate big tool-call argument chunks.
func IterateSSE(r io.Reader, fn func(ev SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	var eventType string
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		err := fn(SSEEvent{Event: eventType, Data: []byte(data)})
		eventType = ""
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			slog.Debug("ignoring unrecognized SSE line", "line", line)
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}
