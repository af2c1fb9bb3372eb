package router

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

const (
	maxDecisions = 1000
	flushEvery   = 25
)

// HistoryService owns the append-only router history: past decisions, the
// per-user preference map, and per-(backend,category) success counters. It
// persists as a single JSON document on disk, written on a decision-count
// cadence and on shutdown.
type HistoryService struct {
	mu         sync.RWMutex
	data       *envelope.History
	path       string
	sinceFlush int
}

// NewHistoryService loads history from path if it exists, otherwise starts
// empty. A missing file is not an error — it means first run.
func NewHistoryService(path string) *HistoryService {
	h := &HistoryService{data: envelope.NewHistory(), path: path}
	if err := h.load(); err != nil {
		slog.Info("starting with empty router history", "path", path, "reason", err)
	}
	return h
}

func (h *HistoryService) load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return err
	}
	var loaded envelope.History
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	if loaded.Preferences == nil {
		loaded.Preferences = make(map[string]envelope.UserPreference)
	}
	if loaded.Successes == nil {
		loaded.Successes = make(map[string]int)
	}
	h.mu.Lock()
	h.data = &loaded
	h.mu.Unlock()
	return nil
}

// Flush writes the current history to disk, creating parent directories as
// needed. Safe to call concurrently; callers typically trigger it from a
// background goroutine so the caller's request path never blocks on disk.
func (h *HistoryService) Flush() error {
	h.mu.RLock()
	data, err := json.Marshal(h.data)
	h.mu.RUnlock()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(h.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(h.path, data, 0o644)
}

// Record appends a decision, trims to maxDecisions, bumps the success
// counter on success, and flushes asynchronously every flushEvery records.
func (h *HistoryService) Record(entry envelope.HistoryEntry) {
	h.mu.Lock()
	h.data.Decisions = append(h.data.Decisions, entry)
	if len(h.data.Decisions) > maxDecisions {
		h.data.Decisions = h.data.Decisions[len(h.data.Decisions)-maxDecisions:]
	}
	if entry.Success {
		key := entry.Decision.Primary + ":" + string(entry.Category)
		h.data.Successes[key]++
	}
	h.sinceFlush++
	shouldFlush := h.sinceFlush >= flushEvery
	if shouldFlush {
		h.sinceFlush = 0
	}
	h.mu.Unlock()

	if shouldFlush {
		go func() {
			if err := h.Flush(); err != nil {
				slog.Warn("router history flush failed", "error", err)
			}
		}()
	}
}

// Preference returns the saved preference record for userID, if any.
func (h *HistoryService) Preference(userID string) (envelope.UserPreference, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.data.Preferences[userID]
	return p, ok
}

// SetPreference upserts a user's preference record.
func (h *HistoryService) SetPreference(pref envelope.UserPreference) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data.Preferences[pref.UserID] = pref
}

// PreferredModelForCategory returns the user's historically preferred
// backend for a category, consulted by the router's step 6.
func (h *HistoryService) PreferredModelForCategory(userID string, category envelope.Category) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pref, ok := h.data.Preferences[userID]
	if !ok {
		return "", false
	}
	backend, ok := pref.PreferredModels[category]
	return backend, ok
}

// ClearHistory drops all recorded decisions but keeps preferences and
// success counters intact.
func (h *HistoryService) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data.Decisions = nil
}

// Snapshot returns a copy of the full history, used by the control plane's
// read-only introspection endpoints.
func (h *HistoryService) Snapshot() envelope.History {
	h.mu.RLock()
	defer h.mu.RUnlock()
	decisions := make([]envelope.HistoryEntry, len(h.data.Decisions))
	copy(decisions, h.data.Decisions)
	prefs := make(map[string]envelope.UserPreference, len(h.data.Preferences))
	for k, v := range h.data.Preferences {
		prefs[k] = v
	}
	successes := make(map[string]int, len(h.data.Successes))
	for k, v := range h.data.Successes {
		successes[k] = v
	}
	return envelope.History{Decisions: decisions, Preferences: prefs, Successes: successes}
}
