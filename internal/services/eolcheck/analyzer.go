package eolcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
)

// RunAnalyze is the server-side analyze stage. Gating: it no-ops unless every
// URL entry is terminal and the job is neither terminal nor already analyzing.
// Duplicate trigger delivery therefore cannot start a second classification
// against the same record.
func (s *Service) RunAnalyze(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID, s.staleAfter())
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || job.Status == models.JobStatusAnalyzing {
		s.logger.Debug().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Msg("Analyze trigger ignored")
		return nil
	}
	if !job.AllEntriesTerminal() {
		s.logger.Debug().
			Str("job_id", jobID).
			Msg("Analyze trigger ignored, entries still in flight")
		return nil
	}

	if err := s.jobs.SetStatus(ctx, jobID, models.JobStatusAnalyzing); err != nil {
		return fmt.Errorf("failed to mark job analyzing: %w", err)
	}

	result, usage, err := s.classifier.Classify(ctx, job)
	if usage != nil && s.onUsage != nil {
		s.onUsage(usage)
	}
	if err != nil {
		var rateErr *interfaces.RateLimitError
		if errors.As(err, &rateErr) {
			if storeErr := s.jobs.SetError(ctx, jobID, rateErr.Error(), true, rateErr.RetrySeconds); storeErr != nil {
				return fmt.Errorf("failed to record rate-limit error: %w", storeErr)
			}
			s.recordEvent("warn", "classification rate limited", map[string]string{
				"job_id": jobID,
			})
			return nil
		}
		if storeErr := s.jobs.SetError(ctx, jobID, err.Error(), false, 0); storeErr != nil {
			return fmt.Errorf("failed to record classification error: %w", storeErr)
		}
		s.recordEvent("error", "classification failed", map[string]string{
			"job_id": jobID, "error": err.Error(),
		})
		return err
	}

	if err := s.jobs.SetResult(ctx, jobID, result); err != nil {
		return fmt.Errorf("failed to store classification: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("status", result.Status).
		Str("successor", result.Successor).
		Msg("Job classified")
	s.recordEvent("info", "job classified", map[string]string{
		"job_id": jobID, "result": result.Status,
	})
	return nil
}
