package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/services/events"
)

// EventsHandler serves the read side of the centralized log sink
type EventsHandler struct {
	events *events.Service
	logger arbor.ILogger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(eventService *events.Service, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{
		events: eventService,
		logger: logger,
	}
}

// RecentHandler handles GET /api/events/recent
func (h *EventsHandler) RecentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read recent events")
		WriteError(w, http.StatusInternalServerError, "Failed to read recent events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(records),
		"events": records,
	})
}
