package health

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Check probes a backend with a minimal completion request and reports
// latency or a classified failure. It is used by Service.Probe, which the
// periodic prober runs for every backend; /debug/compare does not use it.
func Check(info *BackendInfo) (latencyMs int, err error) {
	requestBody := map[string]interface{}{
		"model": "health-probe",
		"messages": []map[string]interface{}{
			{"role": "user", "content": "ping"},
		},
		"max_tokens": 1,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal health check request: %w", err)
	}

	apiURL := strings.TrimSuffix(info.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create health check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if info.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+info.APIKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	start := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	latencyMs = int(time.Since(start).Milliseconds())

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return latencyMs, fmt.Errorf("failed to read health check response: %w", readErr)
	}

	// Any response at all, even a 4xx from an unrecognized probe model, means
	// the backend is reachable and answering. Only 5xx and quota errors count
	// as unhealthy — a malformed-model 400 is still "the server is up".
	if resp.StatusCode >= 500 {
		return latencyMs, fmt.Errorf("server error %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}
	if IsQuotaError(resp.StatusCode, string(body)) {
		return latencyMs, fmt.Errorf("quota exceeded: %s", truncateStr(string(body), 200))
	}

	return latencyMs, nil
}
