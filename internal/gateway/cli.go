package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

const cliPrefix = "proxy-cli"

// handleCLIShortCircuit inspects the last user turn for an in-band
// "proxy-cli <subcommand>" command. When matched, the request never
// reaches the classifier, router, or an upstream backend — the gateway
// answers directly.
func handleCLIShortCircuit(req *envelope.Request, g *Gateway) (string, bool) {
	text := lastUserText(req.Messages)
	if !strings.HasPrefix(strings.TrimSpace(text), cliPrefix) {
		return "", false
	}

	args := strings.Fields(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), cliPrefix)))
	if len(args) == 0 {
		return cliHelp(), true
	}

	switch args[0] {
	case "status":
		return g.cliStatus(), true
	case "models":
		return g.cliModels(), true
	case "use":
		if len(args) < 2 {
			return "usage: proxy-cli use <backend>", true
		}
		if err := g.Config.SetDefaultBackend(args[1]); err != nil {
			return err.Error(), true
		}
		return "default backend set to " + args[1], true
	case "smart":
		if len(args) < 2 {
			return "usage: proxy-cli smart <on|off>", true
		}
		enabled := args[1] == "on"
		g.Config.SetSmartRouterEnabled(enabled)
		return fmt.Sprintf("smart routing set to %v", enabled), true
	case "logs":
		n := 10
		if len(args) >= 2 {
			if parsed, err := strconv.Atoi(args[1]); err == nil {
				n = parsed
			}
		}
		return g.cliLogs(n), true
	case "help":
		return cliHelp(), true
	default:
		return "unknown proxy-cli subcommand: " + args[0] + "\n" + cliHelp(), true
	}
}

func (g *Gateway) cliStatus() string {
	doc := g.Config.Snapshot()
	return fmt.Sprintf("default backend: %s\nsmart routing: %v\nbackends configured: %d",
		doc.DefaultBackend, doc.SmartRouterEnabled, len(doc.Backends))
}

func (g *Gateway) cliModels() string {
	doc := g.Config.Snapshot()
	var sb strings.Builder
	for _, b := range doc.Backends {
		fmt.Fprintf(&sb, "%s (%s) specialties=%v premium=%v\n", b.Name, b.Dialect, b.Specialties, b.Premium)
	}
	return sb.String()
}

func (g *Gateway) cliLogs(n int) string {
	if g.Sink == nil {
		return "no observability sink configured"
	}
	entries := g.Sink.Ring.Last(n)
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%s] backend=%s status=%d latency_ms=%d\n", e.RequestID, e.Backend, e.StatusCode, e.LatencyMs)
	}
	return sb.String()
}

func cliHelp() string {
	return "proxy-cli subcommands: status, models, use <backend>, smart <on|off>, logs [N], help"
}

func lastUserText(messages []envelope.Turn) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == envelope.RoleUser {
			return messages[i].Content.String()
		}
	}
	return ""
}
