package observability

import (
	"strconv"
	"time"
)

// Sink is the single place every completed request reports its outcome:
// the ring buffer, the atomic counters, Prometheus, and (optionally) the
// Mongo persistent sink.
type Sink struct {
	Ring     *RingBuffer
	Counters *Counters
	Metrics  *Metrics
	Mongo    *MongoSink // nil when no persistent sink is configured
}

// NewSink wires a ring buffer, counters, and metrics together. mongo may be
// nil.
func NewSink(metrics *Metrics, mongo *MongoSink) *Sink {
	return &Sink{
		Ring:     NewRingBuffer(),
		Counters: NewCounters(),
		Metrics:  metrics,
		Mongo:    mongo,
	}
}

// Observation is everything the sink needs about one completed request.
type Observation struct {
	RequestID    string
	Backend      string
	Category     string
	UserID       string
	StatusCode   int
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	Query        string
	Response     string
	Error        string
	Timestamp    time.Time
}

// Record fans one observation out to every configured destination.
func (s *Sink) Record(o Observation) {
	statusBucket := statusBucketFor(o.StatusCode)
	isError := o.StatusCode >= 400 || o.Error != ""

	s.Ring.Append(LogEntry{
		RequestID:  o.RequestID,
		Backend:    o.Backend,
		Category:   o.Category,
		StatusCode: o.StatusCode,
		LatencyMs:  o.LatencyMs,
		Error:      o.Error,
		Timestamp:  o.Timestamp.UnixMilli(),
	})

	s.Counters.RecordRequest(o.Backend, statusBucket, o.LatencyMs, isError, o.InputTokens, o.OutputTokens)

	if s.Metrics != nil {
		avg := s.Counters.Snapshot().AvgLatencyMs
		s.Metrics.Observe(o.Backend, statusBucket, avg, isError, o.InputTokens, o.OutputTokens)
	}

	if s.Mongo != nil {
		s.Mongo.Record(RequestRecord{
			RequestID:    o.RequestID,
			Timestamp:    o.Timestamp,
			Backend:      o.Backend,
			UserID:       o.UserID,
			Category:     o.Category,
			StatusCode:   o.StatusCode,
			LatencyMs:    o.LatencyMs,
			InputTokens:  o.InputTokens,
			OutputTokens: o.OutputTokens,
			Query:        o.Query,
			Response:     o.Response,
			Error:        o.Error,
		})
	}
}

func statusBucketFor(status int) string {
	if status == 0 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
