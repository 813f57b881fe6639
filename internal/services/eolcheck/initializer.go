package eolcheck

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/models"
)

// maxIdentifierLength bounds maker and model inputs, in runes
const maxIdentifierLength = 200

// Initialize creates and seeds a new EOL-check job for a part.
//
// A manufacturer-specific strategy seeds a single URL entry; when the
// validating probe already extracted the page, the job skips straight to
// ready_for_analysis. Without a strategy the generic search seeds one entry
// per result. Zero search results is not an error: the job completes
// immediately with an UNKNOWN classification. A search API failure is a hard
// error and leaves the job in created.
func (s *Service) Initialize(ctx context.Context, maker, model string) (*models.Job, error) {
	maker = strings.TrimSpace(maker)
	model = strings.TrimSpace(model)
	if err := validateIdentifier("maker", maker); err != nil {
		return nil, err
	}
	if err := validateIdentifier("model", model); err != nil {
		return nil, err
	}

	s.cleanupExpiredJobs(ctx)

	now := time.Now().UTC()
	job := &models.Job{
		ID:        common.NewJobID(),
		Maker:     maker,
		Model:     model,
		Status:    models.JobStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("maker", maker).
		Str("model", model).
		Msg("Job created")

	if strat := s.resolver.Resolve(ctx, maker, model); strat != nil {
		entry := models.URLEntry{
			Index:          0,
			URL:            strat.URL,
			ScrapingMethod: strat.ScrapingMethod,
			Hints:          strat.Hints,
			Status:         models.URLStatusPending,
			UpdatedAt:      now,
		}
		job.Status = models.JobStatusURLsReady
		if strat.Content != "" {
			entry.Status = models.URLStatusComplete
			entry.Content = strat.Content
			job.Status = models.JobStatusReadyForAnalysis
		}
		job.URLs = []models.URLEntry{entry}
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to seed job from strategy: %w", err)
		}

		s.logger.Info().
			Str("job_id", job.ID).
			Str("method", string(entry.ScrapingMethod)).
			Str("status", string(job.Status)).
			Msg("Job seeded from manufacturer strategy")
		s.recordEvent("info", "job seeded from manufacturer strategy", map[string]string{
			"job_id": job.ID, "maker": maker, "model": model,
		})
		return job, nil
	}

	results, err := s.search.Search(ctx, maker, model)
	if err != nil {
		// The job record stays in created; the caller decides whether to
		// retry with a fresh job.
		s.recordEvent("error", "search failed during job initialization", map[string]string{
			"job_id": job.ID, "error": err.Error(),
		})
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		result := &models.Classification{
			Status: models.ClassificationUnknown,
			Reason: "insufficient information: no search results for this part",
		}
		if err := s.jobs.SetResult(ctx, job.ID, result); err != nil {
			return nil, fmt.Errorf("failed to finalize zero-result job: %w", err)
		}
		job.Status = models.JobStatusComplete
		job.Result = result

		s.logger.Info().Str("job_id", job.ID).Msg("No search results, job complete with UNKNOWN")
		return job, nil
	}

	for i, r := range results {
		job.URLs = append(job.URLs, models.URLEntry{
			Index:          i,
			URL:            r.URL,
			Title:          r.Title,
			Snippet:        r.Snippet,
			ScrapingMethod: s.methodForURL(r.URL),
			Status:         models.URLStatusPending,
			UpdatedAt:      now,
		})
	}
	job.Status = models.JobStatusURLsReady
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to seed job from search results: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("url_count", len(job.URLs)).
		Msg("Job seeded from search results")
	s.recordEvent("info", "job seeded from search results", map[string]string{
		"job_id": job.ID, "maker": maker, "model": model,
		"url_count": strconv.Itoa(len(job.URLs)),
	})
	return job, nil
}

// cleanupExpiredJobs opportunistically removes jobs past retention. Failures
// only warn; creation must not depend on cleanup.
func (s *Service) cleanupExpiredJobs(ctx context.Context) {
	days := s.config.AutoCheck.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := s.jobs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Job retention cleanup failed")
		return
	}
	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Msg("Removed jobs past retention")
	}
}

// methodForURL picks the scraping method for a search result. Document-like
// URLs go through the direct fetcher; everything else needs the external
// renderer when one is configured.
func (s *Service) methodForURL(rawURL string) models.ScrapingMethod {
	lower := strings.ToLower(rawURL)
	if strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, ".pdf?") {
		return models.ScrapingMethodHTTPDirect
	}
	if s.config.Fetch.ExecutorURL != "" {
		return models.ScrapingMethodRenderer
	}
	return models.ScrapingMethodHTTPDirect
}

func validateIdentifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(value) > maxIdentifierLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, field, maxIdentifierLength)
	}
	return nil
}
