package health

import (
	"net/http"
	"strings"
	"time"
)

// IsQuotaError reports whether a backend's response indicates quota
// exhaustion or rate limiting rather than a transient or permanent failure,
// across the vocabulary the three wire dialects actually use: OpenAI-style
// "insufficient_quota"/"rate_limit_exceeded", Anthropic-style
// "rate_limit_error"/"overloaded_error" (HTTP 529), and Gemini-style
// "RESOURCE_EXHAUSTED".
func IsQuotaError(statusCode int, responseBody string) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == 529 {
		return true
	}

	lower := strings.ToLower(responseBody)
	quotaPatterns := []string{
		"quota exceeded",
		"insufficient_quota",
		"rate_limit_exceeded",
		"rate_limit_error",
		"rate limit",
		"too many requests",
		"request limit",
		"tokens per minute",
		"requests per minute",
		"daily limit",
		"billing",
		"overloaded_error",
		"resource_exhausted",
	}

	for _, pattern := range quotaPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// ParseCooldownDuration picks a cooldown tiered by how long the error
// implies the backend will stay unavailable: billing/daily-limit errors
// clear on the provider's own billing cycle, per-minute rate limits clear
// in minutes, and a transient overload (Anthropic 529, no other signal)
// clears quickly since it is load-shedding, not a quota wall.
func ParseCooldownDuration(statusCode int, responseBody string) time.Duration {
	lower := strings.ToLower(responseBody)

	switch {
	case strings.Contains(lower, "daily limit"),
		strings.Contains(lower, "billing"),
		strings.Contains(lower, "insufficient_quota"):
		return 24 * time.Hour

	case statusCode == http.StatusTooManyRequests,
		strings.Contains(lower, "tokens per minute"),
		strings.Contains(lower, "requests per minute"),
		strings.Contains(lower, "rate_limit"):
		return 5 * time.Minute

	case statusCode == 529, strings.Contains(lower, "overloaded_error"), strings.Contains(lower, "resource_exhausted"):
		return 2 * time.Minute

	default:
		return 1 * time.Hour
	}
}
