// Package apperror defines the error envelope the gateway returns to
// clients on upstream and routing failures.
package apperror

import "encoding/json"

// ProxyError is the body of every 502 the gateway emits.
type ProxyError struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId"`
	Backend   string `json:"backend,omitempty"`
}

// New builds a ProxyError for the given request id and reason.
func New(requestID, reason string) *ProxyError {
	return &ProxyError{Error: "proxy_error", Reason: reason, RequestID: requestID}
}

// WithBackend attaches the backend name that failed.
func (e *ProxyError) WithBackend(backend string) *ProxyError {
	e.Backend = backend
	return e
}

// JSON marshals the error, never failing (falls back to a static payload).
func (e *ProxyError) JSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"error":"proxy_error","reason":"internal"}`)
	}
	return b
}
