// Package router maps a classifier verdict and request features to a
// routing decision.
package router

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/apellegr/llm-gateway/internal/config"
	"github.com/apellegr/llm-gateway/internal/envelope"
)

const (
	contextForcingThreshold = 30000
	maxCandidates           = 4
	fanoutCandidates        = 3
)

// Service scores backends and produces routing decisions.
type Service struct {
	store   *config.Store
	history *HistoryService
}

// New builds a router bound to the live config store and history service.
func New(store *config.Store, history *HistoryService) *Service {
	return &Service{store: store, history: history}
}

// Route implements the spec's seven-step algorithm. clientSuppliedTools
// indicates the inbound request already carried its own tool definitions.
func (s *Service) Route(verdict *envelope.Verdict, contextLength int, userID string, clientSuppliedTools bool) envelope.RoutingDecision {
	doc := s.store.Snapshot()

	// Step 1: no classification -> defer to the default backend.
	if verdict == nil {
		return envelope.RoutingDecision{
			Primary:     doc.DefaultBackend,
			AllBackends: []string{doc.DefaultBackend},
			Reason:      "no classification",
		}
	}

	// Step 2: filter suggestedBackends to the known set.
	suggested := filterKnown(verdict.SuggestedBackends, doc.Backends)
	if len(suggested) == 0 {
		if len(verdict.SuggestedBackends) > 0 {
			slog.Debug("router dropped all suggested backends, falling back to default", "suggested", verdict.SuggestedBackends)
		}
		suggested = []string{doc.DefaultBackend}
	}

	// Step 3: score every known backend.
	candidates := scoreBackends(doc.Backends, verdict, suggested)

	decision := envelope.RoutingDecision{
		Candidates: candidates,
		Reason:     "scored routing",
	}
	if len(candidates) > 0 {
		decision.Primary = candidates[0].Backend
		decision.Confidence = candidates[0].Score
	} else {
		decision.Primary = doc.DefaultBackend
	}
	decision.AllBackends = []string{decision.Primary}

	// Step 4: multi-model fan-out trigger.
	if verdict.Category == envelope.CategoryMulti || (verdict.Complexity == envelope.ComplexityExpert && verdict.Confidence < 0.8) {
		decision.MultiModel = true
		top := suggested
		if len(top) > fanoutCandidates {
			top = top[:fanoutCandidates]
		}
		decision.AllBackends = top
		if len(top) > 0 {
			decision.Primary = top[0]
		}
	}

	// Step 5: context-window forcing.
	if contextLength > contextForcingThreshold {
		if b, ok := findBackend(doc.Backends, decision.Primary); ok && b.ContextWindow < contextLength {
			for _, candidate := range doc.Backends {
				if candidate.ContextWindow > contextLength {
					decision.Primary = candidate.Name
					decision.Reason = "context window forcing"
					break
				}
			}
		}
	}

	// Step 6: user's historical preferred-model-for-category.
	if s.history != nil && userID != "" {
		if preferred, ok := s.history.PreferredModelForCategory(userID, verdict.Category); ok && contains(suggested, preferred) {
			decision.Primary = preferred
			decision.Reason = "user preferred model for category"
		}
	}

	// Step 7: tools override. Runs last — it is a hard compatibility
	// constraint, not a preference (see Open Question decision in
	// DESIGN.md).
	if clientSuppliedTools {
		if premium, ok := premiumBackend(doc.Backends); ok && decision.Primary != premium.Name {
			decision.Primary = premium.Name
			decision.ToolsRouted = true
			// Tool defs intentionally dropped on this path (see DESIGN.md
			// Open Question decision #1); flip config.ForwardToolsOnOverride
			// to change this.
		}
	}

	if !contains(decision.AllBackends, decision.Primary) {
		decision.AllBackends = append(decision.AllBackends, decision.Primary)
	}

	return decision
}

func scoreBackends(backends []envelope.Backend, verdict *envelope.Verdict, suggested []string) []envelope.Candidate {
	suggestedSet := make(map[string]bool, len(suggested))
	for _, s := range suggested {
		suggestedSet[s] = true
	}

	candidates := make([]envelope.Candidate, 0, len(backends))
	for _, b := range backends {
		var score float64

		if hasSpecialty(b.Specialties, string(verdict.Category)) {
			score += 0.5
		}
		if matchesComplexity(b, verdict.Complexity) {
			score += 0.2
		}
		for _, kw := range verdict.Keywords {
			if hasSpecialty(b.Specialties, kw) {
				score += 0.1
			}
		}
		if suggestedSet[b.Name] {
			score += 0.3 * verdict.Confidence
		}
		if score > 1.0 {
			score = 1.0
		}
		if score > 0 {
			candidates = append(candidates, envelope.Candidate{Backend: b.Name, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// matchesComplexity is a coarse heuristic: "complex"/"expert" verdicts favor
// non-"fast" speed classes, everything else favors "fast".
func matchesComplexity(b envelope.Backend, complexity envelope.Complexity) bool {
	wantsFast := complexity == envelope.ComplexitySimple || complexity == envelope.ComplexityModerate
	isFast := strings.EqualFold(b.Speed, "fast")
	return wantsFast == isFast
}

func hasSpecialty(specialties []string, tag string) bool {
	for _, s := range specialties {
		if strings.EqualFold(s, tag) {
			return true
		}
	}
	return false
}

func filterKnown(names []string, backends []envelope.Backend) []string {
	known := make(map[string]bool, len(backends))
	for _, b := range backends {
		known[b.Name] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "__premium__" {
			if premium, ok := premiumBackend(backends); ok {
				out = append(out, premium.Name)
			}
			continue
		}
		if known[n] {
			out = append(out, n)
			continue
		}
		slog.Debug("router dropped unknown suggested backend", "name", n)
	}
	return out
}

func findBackend(backends []envelope.Backend, name string) (envelope.Backend, bool) {
	for _, b := range backends {
		if b.Name == name {
			return b, true
		}
	}
	return envelope.Backend{}, false
}

func premiumBackend(backends []envelope.Backend) (envelope.Backend, bool) {
	for _, b := range backends {
		if b.Premium {
			return b, true
		}
	}
	return envelope.Backend{}, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// EstimateContextLength approximates token count for the context-window
// forcing step, combining a word-count and a character-count estimate.
func EstimateContextLength(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)
	wordEstimate := int(float64(words) * 1.3)
	charEstimate := chars / 4
	return (wordEstimate + charEstimate) / 2
}
