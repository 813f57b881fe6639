package models

import (
	"time"
)

// AutoCheckState is the scheduled-run control record shared between the
// quota guard, the daily driver, and the settings API. It is persisted as a
// single KV-store document so a crashed invocation cannot hide state.
type AutoCheckState struct {
	Enabled          bool      `json:"enabled"`
	IsRunning        bool      `json:"is_running"`
	LastActivityTime time.Time `json:"last_activity_time,omitempty"`
	// DailyCount is the number of EOL checks attempted since LastResetDate
	DailyCount    int    `json:"daily_count"`
	LastResetDate string `json:"last_reset_date"` // "2006-01-02" in the configured timezone
	// SearchCreditsRemaining mirrors the search API's remaining-quota signal
	SearchCreditsRemaining int `json:"search_credits_remaining"`
	// LLMTokensRemaining mirrors the last remaining-token signal from the
	// classification provider; advisory only
	LLMTokensRemaining int `json:"llm_tokens_remaining,omitempty"`
	// LLMCooldownUntil is set when a rate-limit error carried a reset delay;
	// scheduled runs must not start new jobs until it elapses
	LLMCooldownUntil time.Time `json:"llm_cooldown_until,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AutoCheckStateUpdate is a partial update applied by the settings API.
// Nil pointers leave the corresponding field untouched.
type AutoCheckStateUpdate struct {
	Enabled                *bool `json:"enabled,omitempty"`
	IsRunning              *bool `json:"is_running,omitempty"`
	SearchCreditsRemaining *int  `json:"search_credits_remaining,omitempty"`
}

// DatasetRow is one part in the externally-maintained current dataset.
// The table UI and Excel import own the dataset; this service only reads it.
type DatasetRow struct {
	Maker string `json:"maker"`
	Model string `json:"model"`
	// LastCheckedAt lets the daily driver skip recently-verified parts
	LastCheckedAt time.Time `json:"last_checked_at,omitempty"`
	// Result is the last known classification, written back after a check
	Result *Classification `json:"result,omitempty"`
}
