// Package gateway wires classification, routing, translation, dispatch,
// and observability together behind the three inbound wire dialects.
package gateway

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gofiber/fiber/v2"

	"github.com/apellegr/llm-gateway/internal/apperror"
	"github.com/apellegr/llm-gateway/internal/classifier"
	"github.com/apellegr/llm-gateway/internal/config"
	"github.com/apellegr/llm-gateway/internal/dispatcher"
	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/observability"
	"github.com/apellegr/llm-gateway/internal/router"
	"github.com/apellegr/llm-gateway/internal/tools"
	"github.com/apellegr/llm-gateway/internal/toolloop"
	"github.com/apellegr/llm-gateway/internal/translator"
)

// Gateway holds every component the request handlers need.
type Gateway struct {
	Config     *config.Store
	Classifier *classifier.Service
	Router     *router.Service
	History    *router.HistoryService
	Dispatcher *dispatcher.Service
	Sink       *observability.Sink
}

// New assembles a Gateway from its already-constructed components.
func New(cfg *config.Store, cls *classifier.Service, rt *router.Service, hist *router.HistoryService, disp *dispatcher.Service, sink *observability.Sink) *Gateway {
	return &Gateway{Config: cfg, Classifier: cls, Router: rt, History: hist, Dispatcher: disp, Sink: sink}
}

// HandleChatCompletions serves dialect B (/v1/chat/completions).
func (g *Gateway) HandleChatCompletions(c *fiber.Ctx) error {
	return g.handle(c, envelope.DialectChatCompletions, "")
}

// HandleMessages serves dialect A (/v1/messages).
func (g *Gateway) HandleMessages(c *fiber.Ctx) error {
	return g.handle(c, envelope.DialectMessages, "")
}

// HandleResponses serves dialect C (/v1/responses).
func (g *Gateway) HandleResponses(c *fiber.Ctx) error {
	return g.handle(c, envelope.DialectResponses, "")
}

// HandleForcedBackend serves /{backendName}/v1/chat/completions-shaped
// traffic, skipping classification and routing in favor of the named
// backend, which still must exist in config.
func (g *Gateway) HandleForcedBackend(c *fiber.Ctx) error {
	return g.handle(c, envelope.DialectChatCompletions, c.Params("backend"))
}

func (g *Gateway) handle(c *fiber.Ctx, clientDialect envelope.Dialect, forcedBackend string) error {
	started := time.Now()
	requestID := "req_" + uuid.NewString()
	c.Set("X-Request-Id", requestID)

	messages, clientTools, stream, modelHint, err := translator.RequestToInternal(clientDialect, c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(apperror.New(requestID, "malformed request body: "+err.Error()))
	}

	req := &envelope.Request{
		ID:            requestID,
		StartedAt:     started,
		ClientDialect: clientDialect,
		Messages:      messages,
		Tools:         clientTools,
		Stream:        stream,
		ModelHint:     modelHint,
		UserID:        c.Get("X-User-Id"),
	}

	if reply, handled := handleCLIShortCircuit(req, g); handled {
		req.CLIShortCircuit = true
		c.Set("X-Backend", "proxy-cli")
		c.Set("X-Timing-Ms", msSince(req.StartedAt))
		g.recordCLI(req)
		return c.SendString(reply)
	}

	ctx := c.Context()

	if forcedBackend == "" {
		req.Verdict = g.Classifier.Classify(ctx, messages, req.UserID, len(clientTools) > 0)
	}

	contextLength := router.EstimateContextLength(flattenMessages(messages))

	var decision envelope.RoutingDecision
	if forcedBackend != "" {
		decision = envelope.RoutingDecision{Primary: forcedBackend, AllBackends: []string{forcedBackend}, Reason: "forced backend path"}
	} else {
		decision = g.Router.Route(req.Verdict, contextLength, req.UserID, len(clientTools) > 0)
	}
	req.Routing = &decision

	backend, ok := g.Config.Backend(decision.Primary)
	if !ok {
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(requestID, "routed backend not configured: "+decision.Primary))
	}
	c.Set("X-Backend", backend.Name)
	c.Set("X-Routing-Reason", decision.Reason)

	if !backend.Premium && verdictCategory(req.Verdict) == envelope.CategoryRealtime && len(req.Tools) == 0 {
		req.Tools = tools.Default().Descriptors()
		stream = false
	}

	if decision.MultiModel {
		return g.handleMultiModel(c, req, decision, backend)
	}

	if stream {
		return g.handleStream(c, req, backend)
	}
	return g.handleBuffered(c, req, backend)
}

func (g *Gateway) handleBuffered(c *fiber.Ctx, req *envelope.Request, backend *envelope.Backend) error {
	ctx := c.Context()

	toolDefs := req.Tools
	if req.Routing.ToolsRouted {
		cfg := g.Config.Snapshot()
		if !cfg.ForwardToolsOnOverride {
			toolDefs = nil
		}
	}

	result, err := toolloop.Run(ctx, g.Dispatcher, backend, req.Messages, toolDefs, toolloop.Options{AutoSearchSalvage: g.Config.Snapshot().AutoSearchSalvage})
	if err != nil {
		g.recordFailure(req, backend, err)
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(req.ID, err.Error()).WithBackend(backend.Name))
	}

	text := translator.AppendAttributionFooter(result.FinalText, backend.Name)
	wire, err := translator.RenderBufferedResponse(req.ClientDialect, &translator.BufferedResponse{Text: text}, backend.Name)
	if err != nil {
		g.recordFailure(req, backend, err)
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(req.ID, err.Error()).WithBackend(backend.Name))
	}

	g.recordSuccess(req, backend, 200)
	c.Set("Content-Type", "application/json")
	c.Set("X-Timing-Ms", msSince(req.StartedAt))
	return c.Send(wire)
}

func (g *Gateway) handleMultiModel(c *fiber.Ctx, req *envelope.Request, decision envelope.RoutingDecision, primary *envelope.Backend) error {
	ctx := c.Context()
	cfg := g.Config.Snapshot()

	backends := make([]*envelope.Backend, 0, len(decision.AllBackends))
	for _, name := range decision.AllBackends {
		for i := range cfg.Backends {
			if cfg.Backends[i].Name == name {
				backends = append(backends, &cfg.Backends[i])
			}
		}
	}
	if len(backends) == 0 {
		backends = []*envelope.Backend{primary}
	}

	results := g.Dispatcher.FanOut(ctx, backends, req.Messages)
	combined := dispatcher.CombineFanout(results)
	if combined == "" {
		g.recordFailure(req, primary, errAllFanoutFailed)
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(req.ID, errAllFanoutFailed.Error()).WithBackend(primary.Name))
	}

	wire, err := translator.RenderBufferedResponse(req.ClientDialect, &translator.BufferedResponse{Text: combined}, primary.Name)
	if err != nil {
		g.recordFailure(req, primary, err)
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(req.ID, err.Error()))
	}

	g.recordSuccess(req, primary, 200)
	c.Set("Content-Type", "application/json")
	c.Set("X-Timing-Ms", msSince(req.StartedAt))
	return c.Send(wire)
}

func (g *Gateway) recordSuccess(req *envelope.Request, backend *envelope.Backend, status int) {
	g.record(req, backend, status, "")
	if g.History != nil {
		g.History.Record(envelope.HistoryEntry{
			Timestamp: time.Now(),
			RequestID: req.ID,
			UserID:    req.UserID,
			Category:  verdictCategory(req.Verdict),
			Decision:  *req.Routing,
			Success:   true,
		})
	}
}

func (g *Gateway) recordFailure(req *envelope.Request, backend *envelope.Backend, err error) {
	g.record(req, backend, 502, err.Error())
	if g.History != nil {
		g.History.Record(envelope.HistoryEntry{
			Timestamp: time.Now(),
			RequestID: req.ID,
			UserID:    req.UserID,
			Category:  verdictCategory(req.Verdict),
			Decision:  *req.Routing,
			Success:   false,
		})
	}
}

// recordCLI writes the one required ring-buffer/observability entry for a
// proxy-cli short-circuited request, which never reaches the classifier,
// router, or a dispatched backend.
func (g *Gateway) recordCLI(req *envelope.Request) {
	if g.Sink == nil {
		return
	}
	g.Sink.Record(observability.Observation{
		RequestID:  req.ID,
		Backend:    "proxy-cli",
		Category:   string(envelope.CategoryUnclassified),
		UserID:     req.UserID,
		StatusCode: 200,
		LatencyMs:  req.Elapsed(),
		Timestamp:  time.Now(),
	})
}

func (g *Gateway) record(req *envelope.Request, backend *envelope.Backend, status int, errMsg string) {
	if g.Sink == nil {
		return
	}
	g.Sink.Record(observability.Observation{
		RequestID:    req.ID,
		Backend:      backend.Name,
		Category:     string(verdictCategory(req.Verdict)),
		UserID:       req.UserID,
		StatusCode:   status,
		LatencyMs:    req.Elapsed(),
		InputTokens:  req.Tokens.Input,
		OutputTokens: req.Tokens.Output,
		Error:        errMsg,
		Timestamp:    time.Now(),
	})
}

func verdictCategory(v *envelope.Verdict) envelope.Category {
	if v == nil {
		return envelope.CategoryUnclassified
	}
	return v.Category
}

func flattenMessages(messages []envelope.Turn) string {
	var total string
	for _, m := range messages {
		total += m.Content.String() + "\n"
	}
	return total
}

func msSince(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}

var errAllFanoutFailed = errors.New("every fan-out backend failed or exceeded the wall-clock budget")
