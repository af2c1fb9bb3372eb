// Package controlplane exposes the gateway's read-only introspection and
// write endpoints under /debug, used by operators. The proxy-cli in-band
// commands do not go through these endpoints; they act on the same config
// store directly from internal/gateway.
package controlplane

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/apellegr/llm-gateway/internal/classifier"
	"github.com/apellegr/llm-gateway/internal/config"
	"github.com/apellegr/llm-gateway/internal/dispatcher"
	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/health"
	"github.com/apellegr/llm-gateway/internal/observability"
	"github.com/apellegr/llm-gateway/internal/router"
)

// ControlPlane binds the debug endpoints to the gateway's live state.
type ControlPlane struct {
	Config     *config.Store
	Health     *health.Service
	Sink       *observability.Sink
	History    *router.HistoryService
	Dispatcher *dispatcher.Service
	Classifier *classifier.Service
}

// New builds a ControlPlane from already-constructed components.
func New(cfg *config.Store, h *health.Service, sink *observability.Sink, hist *router.HistoryService, disp *dispatcher.Service, cls *classifier.Service) *ControlPlane {
	return &ControlPlane{Config: cfg, Health: h, Sink: sink, History: hist, Dispatcher: disp, Classifier: cls}
}

// Register mounts every /debug route onto app.
func (cp *ControlPlane) Register(app *fiber.App) {
	app.Get("/debug/health", cp.getHealth)
	app.Get("/debug/logs", cp.getLogs)
	app.Get("/debug/stats", cp.getStats)
	app.Get("/debug/tokens", cp.getTokens)
	app.Get("/debug/models", cp.getModels)
	app.Get("/debug/history", cp.getHistory)
	app.Get("/debug/history/:id", cp.getHistoryEntry)
	app.Get("/debug/analytics", cp.getAnalytics)

	app.Post("/debug/switch", cp.postSwitch)
	app.Get("/debug/router", cp.getRouter)
	app.Post("/debug/router", cp.postRouter)
	app.Post("/debug/compare", cp.postCompare)
}

func (cp *ControlPlane) getHealth(c *fiber.Ctx) error {
	if cp.Health == nil {
		return c.JSON(fiber.Map{"summary": fiber.Map{}})
	}
	return c.JSON(fiber.Map{
		"backends": cp.Health.Snapshot(),
		"summary":  cp.Health.Summary(),
	})
}

func (cp *ControlPlane) getLogs(c *fiber.Ctx) error {
	n := c.QueryInt("n", 50)
	if cp.Sink == nil {
		return c.JSON([]observability.LogEntry{})
	}
	return c.JSON(cp.Sink.Ring.Last(n))
}

func (cp *ControlPlane) getStats(c *fiber.Ctx) error {
	if cp.Sink == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(cp.Sink.Counters.Snapshot())
}

func (cp *ControlPlane) getTokens(c *fiber.Ctx) error {
	if cp.Sink == nil {
		return c.JSON(fiber.Map{})
	}
	snap := cp.Sink.Counters.Snapshot()
	return c.JSON(fiber.Map{
		"input":       snap.TokensInput,
		"output":      snap.TokensOutput,
		"by_backend_input":  snap.TokensByBackendIn,
		"by_backend_output": snap.TokensByBackendOut,
	})
}

func (cp *ControlPlane) getModels(c *fiber.Ctx) error {
	doc := cp.Config.Snapshot()
	return c.JSON(doc.Backends)
}

func (cp *ControlPlane) getHistory(c *fiber.Ctx) error {
	if cp.History == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(cp.History.Snapshot())
}

func (cp *ControlPlane) getHistoryEntry(c *fiber.Ctx) error {
	if cp.History == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no history service configured"})
	}
	id := c.Params("id")
	snap := cp.History.Snapshot()
	for _, entry := range snap.Decisions {
		if entry.RequestID == id {
			return c.JSON(entry)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
}

func (cp *ControlPlane) getAnalytics(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if cp.History == nil {
		return c.JSON(fiber.Map{"days": days})
	}
	snap := cp.History.Snapshot()
	cutoff := time.Now().AddDate(0, 0, -days)
	byCategory := make(map[string]int)
	byBackend := make(map[string]int)
	for _, entry := range snap.Decisions {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		byCategory[string(entry.Category)]++
		byBackend[entry.Decision.Primary]++
	}
	return c.JSON(fiber.Map{"days": days, "by_category": byCategory, "by_backend": byBackend})
}

type switchRequest struct {
	Backend string `json:"backend"`
}

func (cp *ControlPlane) postSwitch(c *fiber.Ctx) error {
	var body switchRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := cp.Config.SetDefaultBackend(body.Backend); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"defaultBackend": body.Backend})
}

func (cp *ControlPlane) getRouter(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"smartRouterEnabled": cp.Config.SmartRouterEnabled()})
}

// routerActionRequest is the body of POST /debug/router. action selects
// which of the router's write operations to perform; the remaining fields
// are interpreted per action.
type routerActionRequest struct {
	Action     string                   `json:"action"`
	Messages   []envelope.Turn          `json:"messages,omitempty"`
	UserID     string                   `json:"userId,omitempty"`
	Preference *envelope.UserPreference `json:"preference,omitempty"`
}

func (cp *ControlPlane) postRouter(c *fiber.Ctx) error {
	var body routerActionRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	switch body.Action {
	case "classify":
		if cp.Classifier == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "classifier not configured"})
		}
		verdict := cp.Classifier.Classify(c.Context(), body.Messages, body.UserID, false)
		return c.JSON(fiber.Map{"verdict": verdict})

	case "setPreference":
		if cp.History == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history service not configured"})
		}
		if body.Preference == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "preference is required"})
		}
		if body.Preference.UserID == "" {
			body.Preference.UserID = body.UserID
		}
		cp.History.SetPreference(*body.Preference)
		return c.JSON(fiber.Map{"preference": body.Preference})

	case "clearHistory":
		if cp.History == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history service not configured"})
		}
		cp.History.ClearHistory()
		return c.JSON(fiber.Map{"cleared": true})

	case "enable":
		cp.Config.SetSmartRouterEnabled(true)
		return c.JSON(fiber.Map{"smartRouterEnabled": true})

	case "disable":
		cp.Config.SetSmartRouterEnabled(false)
		return c.JSON(fiber.Map{"smartRouterEnabled": false})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown action: " + body.Action})
	}
}

type compareRequest struct {
	Backends []string      `json:"backends"`
	Messages []envelope.Turn `json:"messages"`
}

func (cp *ControlPlane) postCompare(c *fiber.Ctx) error {
	var body compareRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	doc := cp.Config.Snapshot()
	backends := make([]*envelope.Backend, 0, len(body.Backends))
	for _, name := range body.Backends {
		for i := range doc.Backends {
			if doc.Backends[i].Name == name {
				backends = append(backends, &doc.Backends[i])
			}
		}
	}
	if len(backends) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no known backends named"})
	}

	results, err := cp.Dispatcher.CompareAll(c.Context(), backends, body.Messages)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(results)
}
