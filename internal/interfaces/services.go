package interfaces

import (
	"context"
	"fmt"

	"github.com/ternarybob/obsoleta/internal/models"
)

// SearchResult is one hit from the generic web search API
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchProvider issues generic web search queries against a metered API
type SearchProvider interface {
	// Search returns up to the configured number of results for the part.
	// Zero results is not an error.
	Search(ctx context.Context, maker, model string) ([]SearchResult, error)

	// CreditsRemaining reports the API's remaining daily quota as of the
	// last response, or -1 when unknown
	CreditsRemaining() int
}

// FetchExecutor retrieves and extracts text for one URL entry. Implementations
// must no-op safely when invoked twice for the same entry; the job record is
// the arbiter of truth.
type FetchExecutor interface {
	Fetch(ctx context.Context, entry *models.URLEntry) (string, error)
}

// LLMUsage carries the provider's remaining-quota signals returned with a
// classification response
type LLMUsage struct {
	InputTokens     int
	OutputTokens    int
	TokensRemaining int // -1 when the provider reported nothing
}

// Classifier runs the analyze stage over a job's fetched content
type Classifier interface {
	Classify(ctx context.Context, job *models.Job) (*models.Classification, *LLMUsage, error)
}

// RateLimitError is the distinguished error subtype for provider rate limits.
// RetrySeconds is the provider's advisory reset delay.
type RateLimitError struct {
	RetrySeconds int
	Message      string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limited, retry after %ds", e.RetrySeconds)
}

// EventSink records events to the centralized log sink, fire-and-forget
type EventSink interface {
	Record(level, source, message string, context map[string]string)
}

// SchedulerService drives the daily auto-check run
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
	// TriggerNow runs one auto-check cycle immediately, subject to the guard
	TriggerNow() error
}
