package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/quota"
)

// AutoCheckHandler exposes the scheduled-run state and controls
type AutoCheckHandler struct {
	guard     *quota.Guard
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewAutoCheckHandler creates a new auto-check handler
func NewAutoCheckHandler(guard *quota.Guard, scheduler interfaces.SchedulerService, logger arbor.ILogger) *AutoCheckHandler {
	return &AutoCheckHandler{
		guard:     guard,
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetStateHandler handles GET /api/autocheck
func (h *AutoCheckHandler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	state, err := h.guard.State(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read auto-check state")
		WriteError(w, http.StatusInternalServerError, "Failed to read auto-check state")
		return
	}
	cooldown, err := h.guard.CooldownSeconds(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read cooldown")
		WriteError(w, http.StatusInternalServerError, "Failed to read auto-check state")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"state":             state,
		"cooldown_seconds":  cooldown,
		"scheduler_running": h.scheduler.IsRunning(),
	})
}

// SetStateHandler handles POST /api/autocheck - partial update
func (h *AutoCheckHandler) SetStateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var update models.AutoCheckStateUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	state, err := h.guard.ApplyUpdate(r.Context(), &update)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to update auto-check state")
		WriteError(w, http.StatusInternalServerError, "Failed to update auto-check state")
		return
	}

	h.logger.Info().Bool("enabled", state.Enabled).Msg("Auto-check state updated")
	WriteJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// RunNowHandler handles POST /api/autocheck/run - kicks off one cycle in the
// background, subject to the guard
func (h *AutoCheckHandler) RunNowHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	go func() {
		if err := h.scheduler.TriggerNow(); err != nil {
			h.logger.Error().Err(err).Msg("Manual auto-check cycle failed")
		}
	}()

	WriteAccepted(w, "auto-check cycle dispatched")
}
