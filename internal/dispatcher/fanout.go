package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// fanoutBudget bounds how long the slowest fan-out member is waited for
// before its answer is dropped from the combined response.
const fanoutBudget = 45 * time.Second

// FanoutResult is one backend's contribution to a multi-model answer.
type FanoutResult struct {
	Backend string
	Text    string
	Err     error
}

// FanOut dispatches the same buffered request to every backend
// concurrently and joins on a wall-clock budget, tolerating partial
// failure: a backend that errors or overruns the budget is simply omitted
// from CombineFanout rather than failing the whole request.
func (s *Service) FanOut(ctx context.Context, backends []*envelope.Backend, messages []envelope.Turn) []FanoutResult {
	ctx, cancel := context.WithTimeout(ctx, fanoutBudget)
	defer cancel()

	results := make([]FanoutResult, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b *envelope.Backend) {
			defer wg.Done()
			text, _, err := s.Complete(ctx, b, messages, nil)
			results[i] = FanoutResult{Backend: b.Name, Text: text, Err: err}
		}(i, b)
	}
	wg.Wait()
	return results
}

// CombineFanout renders successful fan-out results as labeled blocks
// followed by a combined attribution line, per the multi-model response
// format.
func CombineFanout(results []FanoutResult) string {
	var out string
	succeeded := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out += fmt.Sprintf("**[%s]**\n%s\n\n", r.Backend, r.Text)
		succeeded = append(succeeded, r.Backend)
	}
	if len(succeeded) == 0 {
		return ""
	}
	out += "_[combined from: "
	for i, name := range succeeded {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	out += "]_"
	return out
}

// CompareAll runs the same request against every given backend and fails
// the whole call if any one backend errors, for the control plane's
// /debug/compare endpoint where a partial answer would be misleading.
func (s *Service) CompareAll(ctx context.Context, backends []*envelope.Backend, messages []envelope.Turn) ([]FanoutResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]FanoutResult, len(backends))
	for i, b := range backends {
		i, b := i, b
		g.Go(func() error {
			text, _, err := s.Complete(ctx, b, messages, nil)
			if err != nil {
				return fmt.Errorf("backend %s: %w", b.Name, err)
			}
			results[i] = FanoutResult{Backend: b.Name, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
