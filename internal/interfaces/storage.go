package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/obsoleta/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// ErrJobNotFound is returned when a job ID has no record
var ErrJobNotFound = errors.New("job not found")

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for the generic key/value blob store.
// Badger reads are strongly consistent, so no separate consistency mode is
// exposed; every Get observes the latest committed Set.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs ordered by updated_at DESC
	List(ctx context.Context) ([]KeyValuePair, error)

	// ListByPrefix returns all pairs with keys starting with the given prefix
	ListByPrefix(ctx context.Context, prefix string) ([]KeyValuePair, error)
}

// JobStorage defines persistence operations for EOL-check jobs.
// URL entries are written whole, keyed by index, so at-least-once trigger
// delivery cannot corrupt a record.
type JobStorage interface {
	// SaveJob upserts the full job record
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob retrieves a job by ID, applying the stuck-entry normalization
	// pass: entries stuck in fetching beyond staleAfter surface as errors
	GetJob(ctx context.Context, jobID string, staleAfter time.Duration) (*models.Job, error)

	// UpdateURLEntry overwrites one URL entry on the job, keyed by index
	UpdateURLEntry(ctx context.Context, jobID string, entry models.URLEntry) error

	// SetResult records the final classification and marks the job complete
	SetResult(ctx context.Context, jobID string, result *models.Classification) error

	// SetError marks the job failed. retrySeconds > 0 flags a rate-limit
	// failure with an advisory cooldown
	SetError(ctx context.Context, jobID string, message string, isDailyLimit bool, retrySeconds int) error

	// SetStatus transitions the job status without touching entries
	SetStatus(ctx context.Context, jobID string, status models.JobStatus) error

	// DeleteOlderThan removes jobs created before the cutoff, returning the
	// number deleted. Invoked opportunistically on job creation.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// ListJobs returns jobs ordered by creation time descending
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
}

// EventStorage persists centralized log-sink records
type EventStorage interface {
	// Append stores one event record; failures are the caller's to ignore
	Append(ctx context.Context, event models.EventRecord) error

	// Recent returns the newest events, most recent first
	Recent(ctx context.Context, limit int) ([]models.EventRecord, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	KeyValueStorage() KeyValueStorage
	EventStorage() EventStorage

	// RunGC performs one value-log garbage collection pass on the
	// underlying store. Safe to call while the store is in use.
	RunGC() error

	Close() error
}
