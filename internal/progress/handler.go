package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const keepaliveInterval = 30 * time.Second

type Handler struct {
	broadcaster *Broadcaster
}

func NewHandler(b *Broadcaster) *Handler { return &Handler{broadcaster: b} }

// HandleEvents serves the live progress stream over SSE. The connection is
// read-only from the client's point of view; the server pushes the connected
// ack followed by zero or more progress events until the client goes away.
func (h *Handler) HandleEvents(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.broadcaster.Subscribe()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.broadcaster.Unsubscribe(sub)

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
