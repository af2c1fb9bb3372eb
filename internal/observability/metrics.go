package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors, served on the
// dedicated metrics listener separate from the inbound proxy port.
type Metrics struct {
	RequestsTotal       prometheus.Counter
	ErrorsTotal         prometheus.Counter
	LatencyAvgMs        prometheus.Gauge
	RequestsByBackend   *prometheus.CounterVec
	RequestsByStatus    *prometheus.CounterVec
	TokensInputTotal    prometheus.Counter
	TokensOutputTotal   prometheus.Counter
	TokensByBackendIn   *prometheus.CounterVec
	TokensByBackendOut  *prometheus.CounterVec
}

// NewMetrics registers the gateway's Prometheus collectors under the
// exact names the control plane's operators already dashboard against.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llm_proxy_requests_total",
			Help: "Total number of proxied requests.",
		}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llm_proxy_errors_total",
			Help: "Total number of proxied requests that errored.",
		}),
		LatencyAvgMs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "llm_proxy_latency_avg_ms",
			Help: "Running average request latency in milliseconds.",
		}),
		RequestsByBackend: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_proxy_requests_by_backend",
			Help: "Total requests routed to each backend.",
		}, []string{"backend"}),
		RequestsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_proxy_requests_by_status",
			Help: "Total requests by response status bucket.",
		}, []string{"status"}),
		TokensInputTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llm_proxy_tokens_input_total",
			Help: "Total input tokens across all requests.",
		}),
		TokensOutputTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "llm_proxy_tokens_output_total",
			Help: "Total output tokens across all requests.",
		}),
		TokensByBackendIn: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_proxy_tokens_by_backend_input",
			Help: "Input tokens by backend.",
		}, []string{"backend"}),
		TokensByBackendOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_proxy_tokens_by_backend_output",
			Help: "Output tokens by backend.",
		}, []string{"backend"}),
	}
}

// Observe records one completed request against every relevant collector.
func (m *Metrics) Observe(backend, statusBucket string, avgLatencyMs float64, isError bool, inputTokens, outputTokens int) {
	m.RequestsTotal.Inc()
	if isError {
		m.ErrorsTotal.Inc()
	}
	m.LatencyAvgMs.Set(avgLatencyMs)
	m.RequestsByBackend.WithLabelValues(backend).Inc()
	m.RequestsByStatus.WithLabelValues(statusBucket).Inc()
	m.TokensInputTotal.Add(float64(inputTokens))
	m.TokensOutputTotal.Add(float64(outputTokens))
	m.TokensByBackendIn.WithLabelValues(backend).Add(float64(inputTokens))
	m.TokensByBackendOut.WithLabelValues(backend).Add(float64(outputTokens))
}
