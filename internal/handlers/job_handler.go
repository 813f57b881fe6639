package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/eolcheck"
)

// stageTimeout bounds a background stage executor's lifetime. Generous on
// purpose: renderer-delegated fetches and classification calls are slow.
const stageTimeout = 10 * time.Minute

// JobHandler handles the EOL-check job endpoints
type JobHandler struct {
	eol      *eolcheck.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(eol *eolcheck.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		eol:      eol,
		validate: validator.New(),
		logger:   logger,
	}
}

// InitializeRequest is the POST /api/jobs/initialize payload
type InitializeRequest struct {
	Maker string `json:"maker" validate:"required,max=200"`
	Model string `json:"model" validate:"required,max=200"`
}

// InitializeJobHandler handles POST /api/jobs/initialize
func (h *JobHandler) InitializeJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	job, err := h.eol.Initialize(r.Context(), req.Maker, req.Model)
	if err != nil {
		if errors.Is(err, eolcheck.ErrInvalidInput) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("maker", req.Maker).Str("model", req.Model).Msg("Job initialization failed")
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Job initialization failed: %v", err))
		return
	}

	strategy := "search"
	if len(job.URLs) == 1 && job.URLs[0].Snippet == "" && job.URLs[0].Title == "" {
		strategy = string(job.URLs[0].ScrapingMethod)
	}
	if len(job.URLs) == 0 {
		strategy = "none"
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    job.ID,
		"status":    job.Status,
		"url_count": len(job.URLs),
		"strategy":  strategy,
	})
}

// FetchTriggerHandler handles POST /api/jobs/{id}/fetch. It answers 202
// before the fetch runs; the job record carries the outcome.
func (h *JobHandler) FetchTriggerHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var entry models.URLEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if entry.Index < 0 {
		WriteError(w, http.StatusBadRequest, "url entry index must not be negative")
		return
	}
	if err := entry.Hints.ValidateFor(entry.ScrapingMethod); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
		defer cancel()
		if err := h.eol.RunFetch(ctx, jobID, entry); err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Int("url_index", entry.Index).Msg("Fetch stage failed")
		}
	}()

	WriteAccepted(w, "fetch stage dispatched")
}

// AnalyzeTriggerHandler handles POST /api/jobs/{id}/analyze
func (h *JobHandler) AnalyzeTriggerHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
		defer cancel()
		if err := h.eol.RunAnalyze(ctx, jobID); err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Analyze stage failed")
		}
	}()

	WriteAccepted(w, "analyze stage dispatched")
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.eol.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job")
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// PollJobHandler handles POST /api/jobs/{id}/poll - runs a server-side poll
// session on behalf of an interactive caller and blocks until it finishes.
func (h *JobHandler) PollJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result, err := h.eol.Poll(r.Context(), jobID)
	if err != nil {
		var rateErr *interfaces.RateLimitError
		if errors.As(err, &rateErr) {
			WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"status":        "error",
				"error":         rateErr.Error(),
				"retry_seconds": rateErr.RetrySeconds,
			})
			return
		}
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Poll session failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"result": result,
	})
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.eol.ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}
