package observability

import (
	"sync"
	"sync/atomic"
)

// Counters holds the gateway's running totals: scalar fields are plain
// atomics, per-label breakdowns use a mutex-protected map since the label
// set (backend names, status buckets) is small and changes rarely.
type Counters struct {
	total        int64
	errors       int64
	latencySumMs int64
	latencyCount int64
	tokensInput  int64
	tokensOutput int64

	mu                 sync.Mutex
	byBackend          map[string]int64
	byStatus           map[string]int64
	tokensByBackendIn  map[string]int64
	tokensByBackendOut map[string]int64
}

// NewCounters allocates an empty counter set.
func NewCounters() *Counters {
	return &Counters{
		byBackend:          make(map[string]int64),
		byStatus:           make(map[string]int64),
		tokensByBackendIn:  make(map[string]int64),
		tokensByBackendOut: make(map[string]int64),
	}
}

// RecordRequest updates every counter for one completed request.
func (c *Counters) RecordRequest(backend, statusBucket string, latencyMs int64, isError bool, inputTokens, outputTokens int) {
	atomic.AddInt64(&c.total, 1)
	atomic.AddInt64(&c.latencySumMs, latencyMs)
	atomic.AddInt64(&c.latencyCount, 1)
	atomic.AddInt64(&c.tokensInput, int64(inputTokens))
	atomic.AddInt64(&c.tokensOutput, int64(outputTokens))
	if isError {
		atomic.AddInt64(&c.errors, 1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byBackend[backend]++
	c.byStatus[statusBucket]++
	c.tokensByBackendIn[backend] += int64(inputTokens)
	c.tokensByBackendOut[backend] += int64(outputTokens)
}

// Snapshot is a read-only view of every counter at one instant.
type Snapshot struct {
	Total              int64
	Errors             int64
	AvgLatencyMs       float64
	TokensInput        int64
	TokensOutput       int64
	ByBackend          map[string]int64
	ByStatus           map[string]int64
	TokensByBackendIn  map[string]int64
	TokensByBackendOut map[string]int64
}

// Snapshot copies every counter out for reporting.
func (c *Counters) Snapshot() Snapshot {
	total := atomic.LoadInt64(&c.total)
	errors := atomic.LoadInt64(&c.errors)
	latSum := atomic.LoadInt64(&c.latencySumMs)
	latCount := atomic.LoadInt64(&c.latencyCount)
	tokIn := atomic.LoadInt64(&c.tokensInput)
	tokOut := atomic.LoadInt64(&c.tokensOutput)

	var avg float64
	if latCount > 0 {
		avg = float64(latSum) / float64(latCount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Total:              total,
		Errors:             errors,
		AvgLatencyMs:       avg,
		TokensInput:        tokIn,
		TokensOutput:       tokOut,
		ByBackend:          cloneMap(c.byBackend),
		ByStatus:           cloneMap(c.byStatus),
		TokensByBackendIn:  cloneMap(c.tokensByBackendIn),
		TokensByBackendOut: cloneMap(c.tokensByBackendOut),
	}
}

func cloneMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
