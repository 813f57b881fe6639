package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJob upserts the full job record
func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID and applies the stuck-entry normalization
// pass: an entry left in fetching with no write for longer than staleAfter is
// surfaced as an error entry so the polling driver can advance instead of
// waiting on a crashed executor. The normalized entry is persisted.
func (s *JobStorage) GetJob(ctx context.Context, jobID string, staleAfter time.Duration) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if staleAfter > 0 {
		normalized := false
		cutoff := time.Now().UTC().Add(-staleAfter)
		for i := range job.URLs {
			entry := &job.URLs[i]
			if entry.Status == models.URLStatusFetching && entry.UpdatedAt.Before(cutoff) {
				entry.Status = models.URLStatusError
				entry.Error = "fetch stalled: no activity within staleness window"
				entry.UpdatedAt = time.Now().UTC()
				normalized = true
				s.logger.Warn().
					Str("job_id", jobID).
					Int("url_index", entry.Index).
					Msg("Normalized stuck URL entry to error")
			}
		}
		if normalized {
			if err := s.SaveJob(ctx, &job); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist stuck-entry normalization")
			}
		}
	}

	return &job, nil
}

// UpdateURLEntry overwrites one URL entry in place, keyed by index.
// The full-entry overwrite keeps concurrent at-least-once trigger delivery
// from interleaving partial writes.
func (s *JobStorage) UpdateURLEntry(ctx context.Context, jobID string, entry models.URLEntry) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	entry.UpdatedAt = time.Now().UTC()
	found := false
	for i := range job.URLs {
		if job.URLs[i].Index == entry.Index {
			job.URLs[i] = entry
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("url entry %d not found on job %s", entry.Index, jobID)
	}

	return s.SaveJob(ctx, &job)
}

// SetResult records the final classification and marks the job complete
func (s *JobStorage) SetResult(ctx context.Context, jobID string, result *models.Classification) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	job.Result = result
	job.Status = models.JobStatusComplete
	job.Error = ""
	job.IsDailyLimit = false
	job.RetrySeconds = 0

	return s.SaveJob(ctx, &job)
}

// SetError marks the job failed, clearing any partial result
func (s *JobStorage) SetError(ctx context.Context, jobID string, message string, isDailyLimit bool, retrySeconds int) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = models.JobStatusError
	job.Error = message
	job.IsDailyLimit = isDailyLimit
	job.RetrySeconds = retrySeconds
	job.Result = nil

	return s.SaveJob(ctx, &job)
}

// SetStatus transitions the job status without touching entries
func (s *JobStorage) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = status
	return s.SaveJob(ctx, &job)
}

// DeleteOlderThan removes jobs created before the cutoff
func (s *JobStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("CreatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}

	deleted := 0
	for i := range jobs {
		if err := s.db.Store().Delete(jobs[i].ID, &models.Job{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to delete expired job")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("count", deleted).Msg("Deleted expired jobs")
	}
	return deleted, nil
}

// ListJobs returns jobs ordered by creation time descending
func (s *JobStorage) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}
