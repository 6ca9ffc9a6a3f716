package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/asthmacare/companion/internal/conversation"
	"github.com/coder/websocket"
)

// handleEventStream pushes conversation events (messages, typing,
// form transitions) to a connected UI. Assistant replies resolve
// asynchronously, so polling is not enough; the stream is how the UI
// sees a reply land after its triggering message.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("websocket close", "error", closeErr)
		}
	}()

	events, cancel := h.engine.Subscribe()
	defer cancel()

	// The UI only listens on this socket; CloseRead surfaces client
	// disconnects through ctx.
	ctx := ws.CloseRead(r.Context())

	h.logger.Info("conversation event stream opened")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, ev); err != nil {
				h.logger.Debug("event stream write failed, closing", "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev conversation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
