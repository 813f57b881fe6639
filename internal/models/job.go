package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of an EOL-check job
type JobStatus string

const (
	JobStatusCreated          JobStatus = "created"
	JobStatusURLsReady        JobStatus = "urls_ready"
	JobStatusFetching         JobStatus = "fetching"
	JobStatusReadyForAnalysis JobStatus = "ready_for_analysis"
	JobStatusAnalyzing        JobStatus = "analyzing"
	JobStatusComplete         JobStatus = "complete"
	JobStatusError            JobStatus = "error"
)

// IsTerminal reports whether a job in this status accepts further stage triggers
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// URLStatus represents the per-entry fetch state.
// Transitions are monotonic: pending -> fetching -> complete | error.
type URLStatus string

const (
	URLStatusPending  URLStatus = "pending"
	URLStatusFetching URLStatus = "fetching"
	URLStatusComplete URLStatus = "complete"
	URLStatusError    URLStatus = "error"
)

// IsTerminal reports whether the entry has finished fetching (successfully or not)
func (s URLStatus) IsTerminal() bool {
	return s == URLStatusComplete || s == URLStatusError
}

// ScrapingMethod selects which stage executor processes a URL entry
type ScrapingMethod string

const (
	// ScrapingMethodHTTPDirect fetches document-like content with a plain HTTP GET
	ScrapingMethodHTTPDirect ScrapingMethod = "http_direct"
	// ScrapingMethodRenderer delegates to the generic JavaScript renderer
	ScrapingMethodRenderer ScrapingMethod = "renderer"
	// ScrapingMethodRendererCloudflare delegates to the Cloudflare-capable renderer
	ScrapingMethodRendererCloudflare ScrapingMethod = "renderer_cloudflare"
	// ScrapingMethodSiteSearch delegates to an interactive per-site search flow
	ScrapingMethodSiteSearch ScrapingMethod = "site_search"
)

// StrategyHints carries the extra inputs certain scraping methods need.
// Each field is meaningful only for the methods listed; ValidateFor enforces
// the pairing so entries never carry hints their executor cannot use.
type StrategyHints struct {
	// Model is the identifier typed into the site's own search box (site_search)
	Model string `json:"model,omitempty"`
	// JPURL and USURL are alternate-locale URLs for renderer methods that
	// fall back across regional catalogues
	JPURL string `json:"jp_url,omitempty"`
	USURL string `json:"us_url,omitempty"`
}

// ValidateFor checks that the hints match what the scraping method consumes
func (h *StrategyHints) ValidateFor(method ScrapingMethod) error {
	if h == nil {
		return nil
	}
	switch method {
	case ScrapingMethodSiteSearch:
		if h.Model == "" {
			return fmt.Errorf("site_search requires a model hint")
		}
	case ScrapingMethodRenderer, ScrapingMethodRendererCloudflare:
		// locale alternates are optional
	default:
		if h.Model != "" || h.JPURL != "" || h.USURL != "" {
			return fmt.Errorf("scraping method %s does not accept hints", method)
		}
	}
	return nil
}

// URLEntry is one candidate source page tracked within a job.
// Entries are overwritten whole, keyed by Index, so concurrent at-least-once
// trigger delivery cannot interleave partial writes.
type URLEntry struct {
	Index          int            `json:"index"`
	URL            string         `json:"url"`
	Title          string         `json:"title,omitempty"`
	Snippet        string         `json:"snippet,omitempty"`
	ScrapingMethod ScrapingMethod `json:"scraping_method"`
	Status         URLStatus      `json:"status"`
	// Content is the extracted text once Status is complete
	Content   string         `json:"content,omitempty"`
	Error     string         `json:"error,omitempty"`
	Hints     *StrategyHints `json:"hints,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Classification statuses returned by the analyze stage
const (
	ClassificationActive       = "ACTIVE"
	ClassificationDiscontinued = "DISCONTINUED"
	ClassificationUnknown      = "UNKNOWN"
)

// Classification is the final result payload of a completed job
type Classification struct {
	Status     string   `json:"status"` // ACTIVE, DISCONTINUED, UNKNOWN
	Successor  string   `json:"successor,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// Job is the unit of work for one (manufacturer, model) EOL determination.
// The record in storage is the sole source of truth: every component re-reads
// it rather than caching status across iterations.
type Job struct {
	ID        string    `json:"id"`
	Maker     string    `json:"maker"`
	Model     string    `json:"model"`
	Status    JobStatus `json:"status"`
	URLs      []URLEntry `json:"urls"`
	Result    *Classification `json:"result,omitempty"`
	// Error fields are populated only when Status is error. IsDailyLimit
	// marks a rate-limit-induced failure with an advisory cooldown.
	Error        string    `json:"error,omitempty"`
	IsDailyLimit bool      `json:"is_daily_limit,omitempty"`
	RetrySeconds int       `json:"retry_seconds,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AllEntriesTerminal reports whether every URL entry has finished fetching.
// A job with no entries is vacuously terminal (zero-result search path).
func (j *Job) AllEntriesTerminal() bool {
	for i := range j.URLs {
		if !j.URLs[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// FirstPending returns the lowest-index pending entry, or nil.
// Index 0 is always attempted first; multi-URL concurrent fetching is
// deliberately not supported.
func (j *Job) FirstPending() *URLEntry {
	for i := range j.URLs {
		if j.URLs[i].Status == URLStatusPending {
			return &j.URLs[i]
		}
	}
	return nil
}

// EntryByIndex returns the entry with the given index, or nil
func (j *Job) EntryByIndex(index int) *URLEntry {
	for i := range j.URLs {
		if j.URLs[i].Index == index {
			return &j.URLs[i]
		}
	}
	return nil
}
