package api

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"

	"github.com/helmcode/crew-bus/internal/events"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// eventBuffer is how many events a slow websocket client may fall behind
// before further events are dropped for it.
const eventBuffer = 64

// StreamEvents pushes bus events to the client as JSON envelopes.
// ?types=agent_*,message_sent limits the stream to matching event types.
func (s *Server) StreamEvents(c *websocket.Conn) {
	defer c.Close()

	only := events.ParseFilter(c.Query("types"))

	ch := make(chan *protocol.Event, eventBuffer)
	unsubscribe := s.events.SubscribeAll(func(_ context.Context, ev *protocol.Event) {
		if !only.Match(ev.Type) {
			return
		}
		select {
		case ch <- ev:
		default:
			s.logger.Warn("websocket client lagging, event dropped", "type", ev.Type, "event_id", ev.EventID)
		}
	})
	defer unsubscribe()

	// Also listen for close messages from client.
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
