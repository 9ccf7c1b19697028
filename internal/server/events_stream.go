package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/events"
)

// EventsStreamHandler streams bus events to clients over Server-Sent Events.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates a new SSE handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream.
// An optional ?types=DECISION_CREATED,CYCLE_COMPLETED query restricts the
// stream to the named event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	filter := parseTypesFilter(r.URL.Query().Get("types"))

	// Buffered so a slow client drops events instead of blocking the bus.
	eventChan := make(chan *events.Event, 100)
	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		if len(filter) > 0 && !filter[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("SSE client too slow, dropping event")
		}
	})
	defer unsubscribe()

	fmt.Fprintf(w, "event: connected\ndata: {\"timestamp\":%q}\n\n", time.Now().UTC().Format(time.RFC3339))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug().Str("remote", r.RemoteAddr).Msg("SSE client disconnected")
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event := <-eventChan:
			payload, err := encodeEvent(event)
			if err != nil {
				h.log.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

// parseTypesFilter splits a comma-separated list of event types into a set.
func parseTypesFilter(raw string) map[events.EventType]bool {
	filter := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			filter[events.EventType(t)] = true
		}
	}
	return filter
}

// encodeEvent serializes an event for the wire.
func encodeEvent(event *events.Event) ([]byte, error) {
	return json.Marshal(event)
}
