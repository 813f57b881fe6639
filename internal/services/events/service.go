package events

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
)

const recordTimeout = 5 * time.Second

// Service is the centralized log sink. Record never blocks the caller's
// workflow: a failed write downgrades to a logger warning and is otherwise
// dropped.
type Service struct {
	storage interfaces.EventStorage
	logger  arbor.ILogger
}

// NewService creates the event sink
func NewService(storage interfaces.EventStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Record stores one event, fire-and-forget
func (s *Service) Record(level, source, message string, fields map[string]string) {
	event := models.EventRecord{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Source:    source,
		Message:   message,
		Context:   fields,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.storage.Append(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("source", source).Msg("Failed to record event")
		}
	}()
}

// Recent returns the newest events, most recent first
func (s *Service) Recent(ctx context.Context, limit int) ([]models.EventRecord, error) {
	return s.storage.Recent(ctx, limit)
}
