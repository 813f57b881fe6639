package eolcheck

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/strategy"
)

// ErrInvalidInput marks client errors: the request was rejected before any
// job record existed
var ErrInvalidInput = errors.New("invalid input")

// UsageObserver receives the LLM's remaining-quota signal after each
// classification attempt. The quota guard registers one at startup.
type UsageObserver func(usage *interfaces.LLMUsage)

// Service orchestrates the EOL-check workflow: job initialization, the two
// stage executors, and the polling driver. Progress lives only in the job
// store; the service holds no per-job state.
type Service struct {
	config     *common.Config
	jobs       interfaces.JobStorage
	resolver   StrategyResolver
	search     interfaces.SearchProvider
	fetcher    interfaces.FetchExecutor
	classifier interfaces.Classifier
	triggers   *TriggerClient
	events     interfaces.EventSink
	logger     arbor.ILogger
	onUsage    UsageObserver
}

// StrategyResolver is the narrow slice of the strategy resolver the service
// needs; a nil result means "fall back to generic search"
type StrategyResolver interface {
	Resolve(ctx context.Context, maker, model string) *strategy.Strategy
}

// NewService creates the EOL-check orchestration service
func NewService(
	config *common.Config,
	jobs interfaces.JobStorage,
	resolver StrategyResolver,
	search interfaces.SearchProvider,
	fetcher interfaces.FetchExecutor,
	classifier interfaces.Classifier,
	triggers *TriggerClient,
	events interfaces.EventSink,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:     config,
		jobs:       jobs,
		resolver:   resolver,
		search:     search,
		fetcher:    fetcher,
		classifier: classifier,
		triggers:   triggers,
		events:     events,
		logger:     logger,
	}
}

// SetUsageObserver registers the callback that receives LLM usage signals
func (s *Service) SetUsageObserver(fn UsageObserver) {
	s.onUsage = fn
}

// GetJob returns the job snapshot with the stuck-entry normalization applied
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.jobs.GetJob(ctx, jobID, s.staleAfter())
}

// ListJobs returns recent jobs, newest first
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.jobs.ListJobs(ctx, limit)
}

func (s *Service) staleAfter() time.Duration {
	if s.config.AutoCheck.StaleAfter > 0 {
		return s.config.AutoCheck.StaleAfter
	}
	return 5 * time.Minute
}

// recordEvent writes to the centralized log sink, fire-and-forget
func (s *Service) recordEvent(level, message string, context map[string]string) {
	if s.events != nil {
		s.events.Record(level, "eolcheck", message, context)
	}
}
