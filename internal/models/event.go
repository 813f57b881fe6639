package models

import (
	"time"
)

// EventRecord is one entry in the centralized log sink. Recording is
// fire-and-forget; readers consume recent events for diagnostics only.
type EventRecord struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"` // "debug", "info", "warn", "error"
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
