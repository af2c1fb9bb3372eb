package classifier

import (
	"regexp"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// rule is one entry of the regex tier's built-in table. Rules are tried in
// order; the first match wins.
type rule struct {
	name            string
	pattern         *regexp.Regexp
	category        envelope.Category
	confidence      float64
	retryWithSearch bool
}

// builtinRules is data, not code, matching the teacher's bias toward
// keeping model-specific and pattern-specific tables easy to extend without
// touching the cascade logic itself.
var builtinRules = []rule{
	{
		name:       "greeting",
		pattern:    regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|sup|howdy|good morning|good afternoon|good evening)\b`),
		category:   envelope.CategoryGreetings,
		confidence: 0.95,
	},
	{
		name:            "dissatisfaction-retry",
		pattern:         regexp.MustCompile(`(?i)(look it up|check online|that'?s (not )?(right|wrong|correct)|actually check|search for (it|that)|you'?re wrong)`),
		category:        envelope.CategoryRealtime,
		confidence:      0.92,
		retryWithSearch: true,
	},
	{
		name:       "code-fence",
		pattern:    regexp.MustCompile("```"),
		category:   envelope.CategoryCode,
		confidence: 0.97,
	},
	{
		name:       "code-keywords",
		pattern:    regexp.MustCompile(`(?i)\b(func|def |class |import |console\.log|SELECT \* FROM|public static|#include|package main|function\s*\()\b`),
		category:   envelope.CategoryCode,
		confidence: 0.95,
	},
	{
		name:       "service-status",
		pattern:    regexp.MustCompile(`(?i)\b(is .+ down|down for (everyone|me)|service status|outage)\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.93,
	},
	{
		name:       "weather-explicit",
		pattern:    regexp.MustCompile(`(?i)\b(weather (in|for|at)|forecast (in|for|at))\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.95,
	},
	{
		name:       "weather-implicit",
		pattern:    regexp.MustCompile(`(?i)\b(need an umbrella|need a jacket|is it raining|is it snowing|is it going to rain|is it cold (in|out))\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.93,
	},
	{
		name:       "crypto-price",
		pattern:    regexp.MustCompile(`(?i)\b(bitcoin|btc|ethereum|eth|crypto)\b.{0,20}\bprice\b|\bprice\b.{0,20}\b(bitcoin|btc|ethereum|eth)\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.93,
	},
	{
		name:       "commodity-price",
		pattern:    regexp.MustCompile(`(?i)\b(gold|silver|oil|natural gas)\b.{0,20}\bprice\b|\bprice of (gold|silver|oil)\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.9,
	},
	{
		name:       "news-current-events",
		pattern:    regexp.MustCompile(`(?i)\b(latest news|breaking news|what'?s happening|current events|today'?s headlines)\b`),
		category:   envelope.CategoryRealtime,
		confidence: 0.9,
	},
	{
		name:       "research-framing",
		pattern:    regexp.MustCompile(`(?i)\b(research|compare .+ (and|vs\.?) |pros and cons|what are the differences between|deep dive|literature on)\b`),
		category:   envelope.CategoryResearch,
		confidence: 0.85,
	},
}
