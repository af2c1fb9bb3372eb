package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

var resultCache = gocache.New(10*time.Minute, 15*time.Minute)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type intent string

const (
	intentWeather   intent = "weather"
	intentCrypto    intent = "crypto"
	intentMetal     intent = "metal"
	intentStatus    intent = "status"
	intentUnrouted  intent = "unrouted"
)

var (
	weatherPattern = regexp.MustCompile(`(?i)\b(weather|umbrella|jacket|raining|snowing|forecast|temperature)\b.*\b(in|at|for)\s+([A-Za-z ,]+)`)
	cryptoPattern  = regexp.MustCompile(`(?i)\b(bitcoin|btc|ethereum|eth|crypto)\b`)
	metalPattern   = regexp.MustCompile(`(?i)\b(gold|silver)\b`)
	statusPattern  = regexp.MustCompile(`(?i)\b([a-z0-9.-]+\.[a-z]{2,})\b.*\bdown\b|\bis\s+([a-z0-9 .-]+)\s+down\b`)
)

// NewWebSearchTool builds the built-in web_search tool: a single
// query:string parameter routed to a free upstream by detected intent.
func NewWebSearchTool() *Tool {
	return &Tool{
		Name:        "web_search",
		Description: "Look up current weather, cryptocurrency or commodity prices, or service status. Use this for anything that needs up-to-date information.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Execute: executeWebSearch,
	}
}

func executeWebSearch(args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("web_search requires a non-empty query")
	}

	cacheKey := cacheKeyFor(query)
	if cached, found := resultCache.Get(cacheKey); found {
		return cached.(string), nil
	}

	result, err := dispatchByIntent(query)
	if err != nil {
		return "", err
	}

	resultCache.Set(cacheKey, result, gocache.DefaultExpiration)
	return result, nil
}

func cacheKeyFor(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return hex.EncodeToString(sum[:])
}

func dispatchByIntent(query string) (string, error) {
	switch classifyIntent(query) {
	case intentWeather:
		return fetchWeather(query)
	case intentCrypto:
		return fetchCryptoPrice(query)
	case intentMetal:
		return fetchMetalPrice(query)
	case intentStatus:
		return fetchServiceStatus(query)
	default:
		return staticGuidance(query), nil
	}
}

func classifyIntent(query string) intent {
	switch {
	case weatherPattern.MatchString(query):
		return intentWeather
	case cryptoPattern.MatchString(query):
		return intentCrypto
	case metalPattern.MatchString(query):
		return intentMetal
	case statusPattern.MatchString(query):
		return intentStatus
	default:
		return intentUnrouted
	}
}

func staticGuidance(query string) string {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "oil") || strings.Contains(lower, "natural gas"):
		return "observation_time: " + time.Now().UTC().Format(time.RFC3339) +
			"\nnote: live oil and natural gas pricing has no free upstream configured; check a commodities site such as oilprice.com."
	default:
		return "observation_time: " + time.Now().UTC().Format(time.RFC3339) +
			"\nnote: no free upstream is configured for this query; answer from general knowledge and say the information may be out of date."
	}
}

func fetchWeather(query string) (string, error) {
	m := weatherPattern.FindStringSubmatch(query)
	location := "London"
	if len(m) >= 4 && strings.TrimSpace(m[3]) != "" {
		location = strings.TrimSpace(m[3])
	}

	reqURL := fmt.Sprintf("https://wttr.in/%s?format=j1", url.PathEscape(location))
	body, err := httpGet(reqURL)
	if err != nil {
		return "", fmt.Errorf("weather lookup failed: %w", err)
	}

	var parsed struct {
		CurrentCondition []struct {
			TempC       string `json:"temp_C"`
			WeatherDesc []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
			PrecipMM string `json:"precipMM"`
		} `json:"current_condition"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.CurrentCondition) == 0 {
		return "", fmt.Errorf("weather response unparseable for %s", location)
	}
	cur := parsed.CurrentCondition[0]
	desc := "unknown"
	if len(cur.WeatherDesc) > 0 {
		desc = cur.WeatherDesc[0].Value
	}

	return fmt.Sprintf(
		"location: %s\nconditions: %s\ntemperature_c: %s\nprecipitation_mm: %s\nobservation_time: %s",
		location, desc, cur.TempC, cur.PrecipMM, time.Now().UTC().Format(time.RFC3339),
	), nil
}

func fetchCryptoPrice(query string) (string, error) {
	coin := "bitcoin"
	lower := strings.ToLower(query)
	if strings.Contains(lower, "eth") || strings.Contains(lower, "ethereum") {
		coin = "ethereum"
	}

	reqURL := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd", coin)
	body, err := httpGet(reqURL)
	if err != nil {
		return "", fmt.Errorf("crypto price lookup failed: %w", err)
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("crypto price response unparseable")
	}
	price, ok := parsed[coin]["usd"]
	if !ok {
		return "", fmt.Errorf("no price returned for %s", coin)
	}

	return fmt.Sprintf("asset: %s\nprice_usd: %.2f\nobservation_time: %s", coin, price, time.Now().UTC().Format(time.RFC3339)), nil
}

func fetchMetalPrice(query string) (string, error) {
	metal := "gold"
	if strings.Contains(strings.ToLower(query), "silver") {
		metal = "silver"
	}

	body, err := httpGet("https://api.metals.live/v1/spot/" + metal)
	if err != nil {
		return "", fmt.Errorf("metal price lookup failed: %w", err)
	}

	var parsed []map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed) == 0 {
		return "", fmt.Errorf("metal price response unparseable")
	}
	price := parsed[0][metal]

	return fmt.Sprintf("metal: %s\nprice_usd_per_oz: %.2f\nobservation_time: %s", metal, price, time.Now().UTC().Format(time.RFC3339)), nil
}

// fetchServiceStatus scrapes isitdownrightnow's status page, respecting
// robots.txt, and extracts readable text with trafilatura.
func fetchServiceStatus(query string) (string, error) {
	m := statusPattern.FindStringSubmatch(query)
	site := ""
	if len(m) >= 3 {
		if m[1] != "" {
			site = m[1]
		} else {
			site = strings.TrimSpace(m[2])
		}
	}
	if site == "" {
		return "", fmt.Errorf("could not extract a site name from %q", query)
	}
	site = strings.ReplaceAll(site, " ", "")
	if !strings.Contains(site, ".") {
		site += ".com"
	}

	pageURL := "https://www.isitdownrightnow.com/" + site + ".html"
	if !robotsAllows("https://www.isitdownrightnow.com", "/"+site+".html") {
		return "", fmt.Errorf("robots.txt disallows fetching status page for %s", site)
	}

	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("status page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	opts := trafilatura.Options{}
	extracted, err := trafilatura.Extract(resp.Body, opts)
	if err != nil {
		return "", fmt.Errorf("status page extraction failed: %w", err)
	}

	text := extracted.ContentText
	if len(text) > 600 {
		text = text[:600]
	}

	return fmt.Sprintf("site: %s\nsummary: %s\nobservation_time: %s", site, text, time.Now().UTC().Format(time.RFC3339)), nil
}

func robotsAllows(baseURL, path string) bool {
	resp, err := httpClient.Get(baseURL + "/robots.txt")
	if err != nil {
		// no robots.txt reachable: default to allow, matching the
		// teacher's fail-open posture for best-effort scraping
		return true
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true
	}

	robotsData, err := robotstxt.FromBytes(data)
	if err != nil {
		return true
	}
	group := robotsData.FindGroup("llm-gateway-bot")
	return group.Test(path)
}

func httpGet(reqURL string) ([]byte, error) {
	resp, err := httpClient.Get(reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Debug("web_search upstream returned non-2xx", "url", reqURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
