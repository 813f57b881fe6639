package badger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage implements the EventStorage interface for Badger
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// Append stores one event record
func (s *EventStorage) Append(ctx context.Context, event models.EventRecord) error {
	if event.ID == "" {
		event.ID = "evt_" + uuid.New().String()
	}
	if err := s.db.Store().Insert(event.ID, &event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first
func (s *EventStorage) Recent(ctx context.Context, limit int) ([]models.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.EventRecord
	err := s.db.Store().Find(&events, badgerhold.Where("ID").Ne("").SortBy("Timestamp").Reverse().Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}
