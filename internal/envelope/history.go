package envelope

import "time"

// QualityPreference is a user's declared quality/cost tradeoff.
type QualityPreference string

const (
	QualityLow    QualityPreference = "low"
	QualityNormal QualityPreference = "normal"
	QualityHigh   QualityPreference = "high"
)

// UserPreference is a per-user override record consulted by the classifier
// and router.
type UserPreference struct {
	UserID            string
	CategoryOverrides map[Category]string // category -> backend
	QualityPreference QualityPreference
	PreferredModels   map[Category]string // category -> backend
}

// RingEntry is one completed request captured for the recent-activity view.
type RingEntry struct {
	RequestID    string
	Timestamp    time.Time
	Backend      string
	Status       int
	LatencyMs    int64
	TokensIn     int
	TokensOut    int
	RequestBody  string // truncated to the configured byte budget
	ResponseBody string // truncated to the configured byte budget
	Error        string
}

// HistoryEntry is one append-only routing decision record.
type HistoryEntry struct {
	Timestamp time.Time
	RequestID string
	UserID    string
	Category  Category
	Decision  RoutingDecision
	Success   bool
}

// History accumulates routing decisions, user preferences, and per-category
// success counters. All mutation happens through HistoryService in the
// router package; this type is the persisted shape.
type History struct {
	Decisions   []HistoryEntry
	Preferences map[string]UserPreference // userID -> preference
	Successes   map[string]int            // "backend:category" -> count
}

// NewHistory returns an empty history ready for use.
func NewHistory() *History {
	return &History{
		Preferences: make(map[string]UserPreference),
		Successes:   make(map[string]int),
	}
}
