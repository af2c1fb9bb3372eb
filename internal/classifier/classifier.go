// Package classifier assigns a category and confidence to the latest user
// turn of an inbound request, in three tiers, the first of which reaches
// confidence 0.9 wins.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apellegr/llm-gateway/internal/cache"
	"github.com/apellegr/llm-gateway/internal/envelope"
)

const confidenceGate = 0.9

// Caller dispatches a single bounded, non-streaming completion to a
// backend — implemented by internal/dispatcher so the classifier never
// imports the dispatcher's HTTP/streaming machinery directly.
type Caller interface {
	SimpleComplete(ctx context.Context, backend *envelope.Backend, systemPrompt, userPrompt string) (string, error)
}

// PreferenceLookup resolves a user's saved preference record, if any.
type PreferenceLookup func(userID string) (envelope.UserPreference, bool)

// Service runs the three-tier classification cascade.
type Service struct {
	caller            Caller
	fastModelBackend  *envelope.Backend
	llmBackend        *envelope.Backend
	allBackends       []envelope.Backend
	preferences       PreferenceLookup
	verdicts          *cache.VerdictCache
}

// WithVerdictCache attaches a verdict cache so a repeated prompt with
// identical text skips the LLM tier entirely. Optional; nil is a no-op.
func (s *Service) WithVerdictCache(c *cache.VerdictCache) *Service {
	s.verdicts = c
	return s
}

// New builds a classifier. fastModelBackend is the smallest configured
// backend used for the realtime yes/no probe; llmBackend is the configured
// classifier backend for the structured-JSON tier. Either may be nil, in
// which case that tier is skipped.
func New(caller Caller, fastModelBackend, llmBackend *envelope.Backend, allBackends []envelope.Backend, preferences PreferenceLookup) *Service {
	return &Service{
		caller:           caller,
		fastModelBackend: fastModelBackend,
		llmBackend:       llmBackend,
		allBackends:      allBackends,
		preferences:      preferences,
	}
}

// Classify runs the cascade against the ordered message list for userID.
// It never returns an error: any tier failure downgrades to the next tier,
// or to a null verdict, per spec.
func (s *Service) Classify(ctx context.Context, messages []envelope.Turn, userID string, clientSuppliedTools bool) *envelope.Verdict {
	lastUser := lastUserText(messages)

	verdict := s.regexTier(lastUser)
	if verdict == nil || verdict.Confidence < confidenceGate {
		if v := s.fastModelTier(ctx, lastUser, verdict, clientSuppliedTools); v != nil {
			verdict = v
		}
	}
	if verdict == nil || verdict.Confidence < confidenceGate {
		if v := s.cachedLLMTier(ctx, lastUser, messages); v != nil {
			verdict = v
		}
	}

	if verdict == nil {
		return nil
	}

	s.applyUserPreference(verdict, userID)
	return verdict
}

func (s *Service) regexTier(text string) *envelope.Verdict {
	for _, r := range builtinRules {
		if r.pattern.MatchString(text) {
			return &envelope.Verdict{
				Category:        r.category,
				Confidence:      r.confidence,
				Complexity:      envelope.ComplexityModerate,
				Reasoning:       "matched rule: " + r.name,
				Source:          envelope.SourceQuickRegex,
				RetryWithSearch: r.retryWithSearch,
			}
		}
	}

	if len(strings.TrimSpace(text)) < 30 {
		return &envelope.Verdict{
			Category:   envelope.CategoryConversation,
			Confidence: 0.85,
			Complexity: envelope.ComplexitySimple,
			Reasoning:  "short message, no rule matched",
			Source:     envelope.SourceQuickRegex,
		}
	}

	return nil
}

// fastModelTier asks a single YES/NO question of the smallest configured
// backend: does this need current information? Skipped if the request
// already declares its own tools, or the regex tier already said realtime.
func (s *Service) fastModelTier(ctx context.Context, text string, priorVerdict *envelope.Verdict, clientSuppliedTools bool) *envelope.Verdict {
	if s.fastModelBackend == nil || s.caller == nil {
		return nil
	}
	if clientSuppliedTools {
		return nil
	}
	if priorVerdict != nil && priorVerdict.Category == envelope.CategoryRealtime {
		return nil
	}

	prompt := fmt.Sprintf("Does answering this message require current, real-time information (today's date, live prices, live weather, breaking news)? Reply with exactly YES or NO.\n\nMessage: %q", text)

	reply, err := s.caller.SimpleComplete(ctx, s.fastModelBackend, "You answer only YES or NO.", prompt)
	if err != nil {
		slog.Debug("fast-model realtime probe failed", "error", err)
		return nil
	}

	reply = strings.ToUpper(strings.TrimSpace(reply))
	if strings.HasPrefix(reply, "YES") {
		return &envelope.Verdict{
			Category:   envelope.CategoryRealtime,
			Confidence: 0.9,
			Complexity: envelope.ComplexityModerate,
			Reasoning:  "fast-model realtime probe: yes",
			Source:     envelope.SourceFastModel,
		}
	}
	return nil
}

// cachedLLMTier serves a cached verdict for an identical last-user-message
// text when available, only falling through to the LLM tier on a miss.
func (s *Service) cachedLLMTier(ctx context.Context, lastUser string, messages []envelope.Turn) *envelope.Verdict {
	if s.verdicts != nil {
		if raw, ok := s.verdicts.Get(ctx, lastUser); ok {
			var v envelope.Verdict
			if err := json.Unmarshal([]byte(raw), &v); err == nil {
				return &v
			}
		}
	}

	v := s.llmTier(ctx, messages)
	if v != nil && s.verdicts != nil {
		s.verdicts.Set(ctx, lastUser, v)
	}
	return v
}

type llmVerdictJSON struct {
	Category          string   `json:"category"`
	Confidence        float64  `json:"confidence"`
	Complexity        string   `json:"complexity"`
	Keywords          []string `json:"keywords"`
	SuggestedBackends []string `json:"suggestedBackends"`
	Reasoning         string   `json:"reasoning"`
}

// llmTier runs a structured-JSON classification against the configured
// classifier backend, with a prompt enumerating the available backends and
// their declared specialties.
func (s *Service) llmTier(ctx context.Context, messages []envelope.Turn) *envelope.Verdict {
	if s.llmBackend == nil || s.caller == nil {
		return nil
	}

	system := buildClassifierSystemPrompt(s.allBackends)
	userPrompt := lastUserText(messages)

	reply, err := s.caller.SimpleComplete(ctx, s.llmBackend, system, userPrompt)
	if err != nil {
		slog.Debug("LLM classification tier failed", "error", err)
		return nil
	}

	block := extractJSONObject(reply)
	if block == "" {
		return nil
	}

	var parsed llmVerdictJSON
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		slog.Debug("LLM classification tier returned unparseable JSON", "error", err)
		return nil
	}

	category := envelope.Category(parsed.Category)
	if !isKnownCategory(category) {
		category = envelope.CategoryUnclassified
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	complexity := envelope.Complexity(parsed.Complexity)
	if complexity == "" {
		complexity = envelope.ComplexityModerate
	}

	return &envelope.Verdict{
		Category:          category,
		Confidence:        confidence,
		Complexity:        complexity,
		Keywords:          parsed.Keywords,
		SuggestedBackends: parsed.SuggestedBackends,
		Reasoning:         parsed.Reasoning,
		Source:            envelope.SourceLLM,
	}
}

func (s *Service) applyUserPreference(v *envelope.Verdict, userID string) {
	if s.preferences == nil || userID == "" {
		return
	}
	pref, ok := s.preferences(userID)
	if !ok {
		return
	}
	if backend, ok := pref.CategoryOverrides[v.Category]; ok {
		v.SuggestedBackends = append([]string{backend}, v.SuggestedBackends...)
	}
	if pref.QualityPreference == envelope.QualityHigh && v.Complexity != envelope.ComplexitySimple {
		v.SuggestedBackends = append(v.SuggestedBackends, "__premium__")
	}
}

func buildClassifierSystemPrompt(backends []envelope.Backend) string {
	var sb strings.Builder
	sb.WriteString("You classify a chat message into exactly one category from this closed set: ")
	sb.WriteString("greetings, conversation, code, research, complex, realtime, multi, unclassified.\n")
	sb.WriteString("Available backends and their specialties:\n")
	for _, b := range backends {
		fmt.Fprintf(&sb, "- %s: %s\n", b.Name, strings.Join(b.Specialties, ", "))
	}
	sb.WriteString("Respond with a single JSON object: {\"category\":..,\"confidence\":0..1,\"complexity\":\"simple|moderate|complex|expert\",\"keywords\":[...],\"suggestedBackends\":[...],\"reasoning\":\"...\"}")
	return sb.String()
}

func isKnownCategory(c envelope.Category) bool {
	switch c {
	case envelope.CategoryGreetings, envelope.CategoryConversation, envelope.CategoryCode,
		envelope.CategoryResearch, envelope.CategoryComplex, envelope.CategoryRealtime,
		envelope.CategoryMulti, envelope.CategoryUnclassified:
		return true
	}
	return false
}

func lastUserText(messages []envelope.Turn) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == envelope.RoleUser {
			return messages[i].Content.String()
		}
	}
	return ""
}

// extractJSONObject returns the first top-level {...} block in s, or "" if
// none balances.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
