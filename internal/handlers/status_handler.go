package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/services/eolcheck"
)

// StatusHandler serves health, version, and application status
type StatusHandler struct {
	config    *common.Config
	eol       *eolcheck.Service
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
	startTime time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(config *common.Config, eol *eolcheck.Service, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		config:    config,
		eol:       eol,
		scheduler: scheduler,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
	})
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs, err := h.eol.ListJobs(r.Context(), 200)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to read status")
		return
	}

	byStatus := make(map[string]int)
	for _, job := range jobs {
		byStatus[string(job.Status)]++
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":           common.GetVersion(),
		"environment":       h.config.Environment,
		"uptime_seconds":    int(time.Since(h.startTime).Seconds()),
		"scheduler_running": h.scheduler.IsRunning(),
		"jobs":              byStatus,
	})
}

// NotFoundHandler handles unmatched /api/ paths
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Unknown API endpoint")
}
