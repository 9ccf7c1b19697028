package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/helmsman/internal/events"
)

// EventsSocketHandler streams bus events to clients over a websocket.
// It carries the same payloads as the SSE stream for clients that
// prefer a bidirectional transport.
type EventsSocketHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsSocketHandler creates a new websocket event handler.
func NewEventsSocketHandler(bus *events.Bus, log zerolog.Logger) *EventsSocketHandler {
	return &EventsSocketHandler{
		bus: bus,
		log: log.With().Str("component", "events_socket").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws.
func (h *EventsSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	filter := parseTypesFilter(r.URL.Query().Get("types"))

	eventChan := make(chan *events.Event, 100)
	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		if len(filter) > 0 && !filter[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Websocket client too slow, dropping event")
		}
	})
	defer unsubscribe()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client disconnected")
			return

		case event := <-eventChan:
			payload, err := encodeEvent(event)
			if err != nil {
				h.log.Error().Err(err).Msg("Failed to encode event")
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.log.Warn().Err(err).Msg("Websocket write failed")
				}
				return
			}
		}
	}
}
