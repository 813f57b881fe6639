package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/eolcheck"
	"github.com/ternarybob/obsoleta/internal/services/quota"
)

// datasetKey is the KV document holding the current part dataset. An external
// importer replaces it wholesale; this service reads it and writes results back.
const datasetKey = "dataset/current"

// recheckInterval is how long a verified classification stays fresh before
// the daily driver re-checks the part
const recheckInterval = 30 * 24 * time.Hour

// Service is the scheduled daily driver. One cron entry runs a full cycle:
// stuck-run recovery, guard check, then an initialize+poll pass over every
// stale part in the dataset.
type Service struct {
	config   *common.AutoCheckConfig
	guard    *quota.Guard
	eol      *eolcheck.Service
	search   interfaces.SearchProvider
	kv       interfaces.KeyValueStorage
	events   interfaces.EventSink
	cron     *cron.Cron
	logger   arbor.ILogger
	mu       sync.Mutex
	running  bool
	location *time.Location
}

// NewService creates the daily driver
func NewService(
	config *common.AutoCheckConfig,
	guard *quota.Guard,
	eol *eolcheck.Service,
	search interfaces.SearchProvider,
	kv interfaces.KeyValueStorage,
	events interfaces.EventSink,
	logger arbor.ILogger,
) (*Service, error) {
	tz := config.Timezone
	if tz == "" {
		tz = "Asia/Tokyo"
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid autocheck timezone %q: %w", tz, err)
	}
	return &Service{
		config:   config,
		guard:    guard,
		eol:      eol,
		search:   search,
		kv:       kv,
		events:   events,
		cron:     cron.New(cron.WithLocation(location)),
		logger:   logger,
		location: location,
	}, nil
}

// Start registers the daily cron entry and begins the scheduler
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.runCycle(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled auto-check cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register cron schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("timezone", s.location.String()).
		Msg("Auto-check scheduler started")
	return nil
}

// Stop halts the scheduler, waiting for an in-flight cycle to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Auto-check scheduler stopped")
	return nil
}

// IsRunning reports whether the cron scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow runs one auto-check cycle immediately, subject to the guard
func (s *Service) TriggerNow() error {
	return s.runCycle(context.Background())
}

// runCycle is one complete scheduled pass over the dataset
func (s *Service) runCycle(ctx context.Context) error {
	if recovered, err := s.guard.RecoverStuckRun(ctx); err != nil {
		return fmt.Errorf("stuck-run health check failed: %w", err)
	} else if recovered {
		s.record("warn", "stuck auto-check run recovered", nil)
	}

	ok, reason, err := s.guard.CanProceed(ctx)
	if err != nil {
		return fmt.Errorf("guard check failed: %w", err)
	}
	if !ok {
		s.logger.Info().Str("reason", reason).Msg("Auto-check cycle skipped")
		return nil
	}

	rows, err := s.loadDataset(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.logger.Info().Msg("Auto-check dataset is empty, nothing to do")
		return nil
	}

	if err := s.guard.SetRunning(ctx, true); err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	defer func() {
		if err := s.guard.SetRunning(context.Background(), false); err != nil {
			s.logger.Error().Err(err).Msg("Failed to mark run finished")
		}
	}()

	s.record("info", "auto-check cycle started", map[string]string{
		"parts": fmt.Sprintf("%d", len(rows)),
	})

	checked := 0
	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		if !row.LastCheckedAt.IsZero() && now.Sub(row.LastCheckedAt) < recheckInterval {
			continue
		}

		ok, reason, err := s.guard.CanContinue(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Mid-run guard check failed, stopping cycle")
			break
		}
		if !ok {
			s.logger.Info().Str("reason", reason).Msg("Auto-check cycle stopped by guard")
			break
		}

		if err := s.guard.RecordAttempt(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to record attempt, stopping cycle")
			break
		}

		if stop := s.checkPart(ctx, row); stop {
			break
		}
		checked++

		if err := s.guard.ObserveSearchCredits(ctx, s.search.CreditsRemaining()); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record search credits")
		}
	}

	if err := s.saveDataset(ctx, rows); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write dataset results back")
	}

	s.record("info", "auto-check cycle finished", map[string]string{
		"checked": fmt.Sprintf("%d", checked),
	})
	s.logger.Info().Int("checked", checked).Int("dataset", len(rows)).Msg("Auto-check cycle finished")
	return nil
}

// checkPart runs one part through initialize + poll. The return value asks
// the cycle to stop (rate limit hit); per-part failures only skip the part.
func (s *Service) checkPart(ctx context.Context, row *models.DatasetRow) bool {
	s.logger.Info().
		Str("maker", row.Maker).
		Str("model", row.Model).
		Msg("Auto-check part")

	job, err := s.eol.Initialize(ctx, row.Maker, row.Model)
	if err != nil {
		s.logger.Warn().
			Str("maker", row.Maker).
			Str("model", row.Model).
			Err(err).
			Msg("Auto-check initialization failed, skipping part")
		return false
	}

	result, err := s.eol.Poll(ctx, job.ID)
	if err != nil {
		var rateErr *interfaces.RateLimitError
		if errors.As(err, &rateErr) {
			if cdErr := s.guard.SetLLMCooldown(ctx, rateErr.RetrySeconds); cdErr != nil {
				s.logger.Error().Err(cdErr).Msg("Failed to set LLM cooldown")
			}
			s.record("warn", "auto-check stopped by rate limit", map[string]string{
				"retry_seconds": fmt.Sprintf("%d", rateErr.RetrySeconds),
			})
			return true
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Err(err).
			Msg("Auto-check poll failed, skipping part")
		return false
	}

	row.Result = result
	row.LastCheckedAt = time.Now().UTC()

	if err := s.guard.Heartbeat(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stamp run heartbeat")
	}
	return false
}

func (s *Service) loadDataset(ctx context.Context) ([]models.DatasetRow, error) {
	raw, err := s.kv.Get(ctx, datasetKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	var rows []models.DatasetRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("corrupt dataset document: %w", err)
	}
	return rows, nil
}

func (s *Service) saveDataset(ctx context.Context, rows []models.DatasetRow) error {
	if rows == nil {
		return nil
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return s.kv.Set(ctx, datasetKey, string(raw), "current part dataset")
}

func (s *Service) record(level, message string, fields map[string]string) {
	if s.events != nil {
		s.events.Record(level, "scheduler", message, fields)
	}
}
