package eolcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
)

// Poll drives one job to completion: it repeatedly reads the job record,
// fires at most one fetch trigger and one analyze trigger per session, and
// returns the final classification.
//
// The two latches are session-scoped only. A fresh session may re-fire a
// trigger, which is safe because the stage executors no-op by record
// inspection. Exhausting the iteration budget returns a synthetic UNKNOWN
// result and leaves the job exactly as the store last reported it, so a later
// session can resume it. Status read errors propagate immediately; trigger
// failures do not end the session, the next read decides.
func (s *Service) Poll(ctx context.Context, jobID string) (*models.Classification, error) {
	interval := s.config.Poller.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxIterations := s.config.Poller.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 60
	}

	fetchTriggered := false
	analyzeTriggered := false

	for iteration := 0; iteration < maxIterations; iteration++ {
		job, err := s.jobs.GetJob(ctx, jobID, s.staleAfter())
		if err != nil {
			return nil, fmt.Errorf("failed to read job status: %w", err)
		}

		switch job.Status {
		case models.JobStatusComplete:
			return job.Result, nil

		case models.JobStatusError:
			if job.IsDailyLimit {
				return nil, &interfaces.RateLimitError{
					RetrySeconds: job.RetrySeconds,
					Message:      job.Error,
				}
			}
			return nil, fmt.Errorf("job failed: %s", job.Error)
		}

		switch {
		case job.Status == models.JobStatusURLsReady && !fetchTriggered && isPendingFirstEntry(job):
			entry := job.EntryByIndex(0)
			outcome := s.triggers.TriggerFetch(ctx, jobID, *entry)
			s.logger.Debug().
				Str("job_id", jobID).
				Str("outcome", outcome.String()).
				Msg("Fetch trigger dispatched")
			if outcome != TriggerFailed {
				fetchTriggered = true
			}

		case len(job.URLs) > 0 && job.AllEntriesTerminal() && !analyzeTriggered:
			outcome := s.triggers.TriggerAnalyze(ctx, jobID)
			s.logger.Debug().
				Str("job_id", jobID).
				Str("outcome", outcome.String()).
				Msg("Analyze trigger dispatched")
			if outcome != TriggerFailed {
				analyzeTriggered = true
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Int("iterations", maxIterations).
		Msg("Polling budget exhausted")
	return &models.Classification{
		Status: models.ClassificationUnknown,
		Reason: "still processing: polling budget exhausted before the job completed",
	}, nil
}

// isPendingFirstEntry reports whether entry index 0 awaits its fetch. Only
// index 0 is ever dispatched per session; multi-URL concurrent fetching is
// deliberately not supported.
func isPendingFirstEntry(job *models.Job) bool {
	entry := job.EntryByIndex(0)
	return entry != nil && entry.Status == models.URLStatusPending
}
