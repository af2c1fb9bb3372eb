package gateway

import (
	"bufio"

	"github.com/gofiber/fiber/v2"

	"github.com/apellegr/llm-gateway/internal/apperror"
	"github.com/apellegr/llm-gateway/internal/dispatcher"
	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/translator"
)

// handleStream proxies a streaming request end-to-end through the
// coroutine, writing client-dialect SSE frames as upstream chunks arrive.
// Tool calling is never attempted on this path — dialect B/C tool-call
// deltas would need buffering the coroutine doesn't do. No tool definitions
// are sent upstream here, so tools the client declared on a streaming
// request are not forwarded; only the built-in web_search injection in
// handle switches a request to the buffered path.
func (g *Gateway) handleStream(c *fiber.Ctx, req *envelope.Request, backend *envelope.Backend) error {
	ctx := c.Context()

	body, err := g.Dispatcher.StreamDispatch(ctx, backend, req.Messages, nil)
	if err != nil {
		g.recordFailure(req, backend, err)
		return c.Status(fiber.StatusBadGateway).JSON(apperror.New(req.ID, err.Error()).WithBackend(backend.Name))
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Timing-Ms", msSince(req.StartedAt))

	coroutine := translator.NewStreamCoroutine(backend.Dialect, req.ClientDialect, backend.Name)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer body.Close()

		aborted := false
		err := dispatcher.IterateSSE(body, func(ev dispatcher.SSEEvent) error {
			if c.Context().Err() != nil {
				aborted = true
				return c.Context().Err()
			}
			chunks, err := coroutine.Feed(ev.Event, ev.Data)
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				if _, werr := w.Write(chunk); werr != nil {
					return werr
				}
			}
			return w.Flush()
		})

		if aborted {
			for _, chunk := range coroutine.Abort() {
				w.Write(chunk)
			}
			w.Flush()
			g.recordFailure(req, backend, errClientDisconnected)
			return
		}

		if err != nil {
			for _, chunk := range coroutine.Abort() {
				w.Write(chunk)
			}
			w.Flush()
			g.recordFailure(req, backend, err)
			return
		}

		for _, chunk := range coroutine.Finish() {
			w.Write(chunk)
		}
		w.Flush()
		g.recordSuccess(req, backend, 200)
	})

	return nil
}

var errClientDisconnected = fiberErr("client disconnected mid-stream")

type fiberErr string

func (e fiberErr) Error() string { return string(e) }
