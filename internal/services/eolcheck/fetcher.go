package eolcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/httpclient"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/content"
)

// DirectExecutor fetches document-like pages with a plain HTTP GET and
// extracts their text. It handles the http_direct scraping method only.
type DirectExecutor struct {
	client      *http.Client
	processor   *content.Processor
	userAgent   string
	maxBodySize int64
}

// NewDirectExecutor creates the direct-HTTP fetch executor
func NewDirectExecutor(cfg *common.FetchConfig) *DirectExecutor {
	maxBody := int64(cfg.MaxBodySize)
	if maxBody <= 0 {
		maxBody = 2 * 1024 * 1024
	}
	return &DirectExecutor{
		client:      httpclient.NewDefaultHTTPClient(cfg.RequestTimeout),
		processor:   content.NewProcessor(0),
		userAgent:   cfg.UserAgent,
		maxBodySize: maxBody,
	}
}

func (e *DirectExecutor) Fetch(ctx context.Context, entry *models.URLEntry) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	text, err := e.processor.Extract(string(body))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("page contained no extractable text")
	}
	return text, nil
}

// RemoteExecutor delegates renderer-backed scraping methods to an external
// executor service that runs a real browser. The executor answers with the
// extracted text, not raw HTML.
type RemoteExecutor struct {
	client      *http.Client
	executorURL string
}

// NewRemoteExecutor creates the executor for renderer scraping methods.
// executorURL may be empty; Fetch then reports the method unsupported.
func NewRemoteExecutor(executorURL string, timeout time.Duration) *RemoteExecutor {
	return &RemoteExecutor{
		client:      httpclient.NewDefaultHTTPClient(timeout),
		executorURL: executorURL,
	}
}

type remoteFetchRequest struct {
	URL    string                `json:"url"`
	Method models.ScrapingMethod `json:"method"`
	Hints  *models.StrategyHints `json:"hints,omitempty"`
}

type remoteFetchResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func (e *RemoteExecutor) Fetch(ctx context.Context, entry *models.URLEntry) (string, error) {
	if e.executorURL == "" {
		return "", fmt.Errorf("scraping method %s requires an external executor (fetch.executor_url)", entry.ScrapingMethod)
	}

	payload, err := json.Marshal(remoteFetchRequest{
		URL:    entry.URL,
		Method: entry.ScrapingMethod,
		Hints:  entry.Hints,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode executor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.executorURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executor call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("executor returned status %d", resp.StatusCode)
	}

	var result remoteFetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode executor response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("executor error: %s", result.Error)
	}
	if result.Content == "" {
		return "", fmt.Errorf("executor returned no content")
	}
	return result.Content, nil
}

// Fetcher is the fetch stage executor. One invocation processes at most one
// URL entry; the polling driver re-triggers the stage while pending entries
// remain. Re-delivery of a trigger for an entry already processed is safe
// because entries are overwritten whole and the transitions are monotonic.
type Fetcher struct {
	direct *DirectExecutor
	remote *RemoteExecutor
	logger arbor.ILogger
}

// NewFetcher creates the fetch stage executor
func NewFetcher(cfg *common.FetchConfig, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		direct: NewDirectExecutor(cfg),
		remote: NewRemoteExecutor(cfg.ExecutorURL, cfg.RequestTimeout),
		logger: logger,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, entry *models.URLEntry) (string, error) {
	switch entry.ScrapingMethod {
	case models.ScrapingMethodHTTPDirect:
		return f.direct.Fetch(ctx, entry)
	case models.ScrapingMethodRenderer, models.ScrapingMethodRendererCloudflare, models.ScrapingMethodSiteSearch:
		return f.remote.Fetch(ctx, entry)
	default:
		return "", fmt.Errorf("unknown scraping method %q", entry.ScrapingMethod)
	}
}

// RunFetch is the server-side fetch stage. It no-ops when the stored entry is
// no longer pending, which is what makes duplicate trigger delivery safe, and
// writes the entry back whole on every transition.
func (s *Service) RunFetch(ctx context.Context, jobID string, dispatch models.URLEntry) error {
	job, err := s.jobs.GetJob(ctx, jobID, s.staleAfter())
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		s.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Fetch trigger for terminal job ignored")
		return nil
	}

	stored := job.EntryByIndex(dispatch.Index)
	if stored == nil {
		return fmt.Errorf("job %s has no URL entry with index %d", jobID, dispatch.Index)
	}
	if stored.Status != models.URLStatusPending {
		s.logger.Debug().
			Str("job_id", jobID).
			Int("url_index", dispatch.Index).
			Str("entry_status", string(stored.Status)).
			Msg("Fetch trigger for non-pending entry ignored")
		return nil
	}

	entry := *stored
	entry.Status = models.URLStatusFetching
	entry.UpdatedAt = time.Now().UTC()
	if err := s.jobs.UpdateURLEntry(ctx, jobID, entry); err != nil {
		return fmt.Errorf("failed to mark entry fetching: %w", err)
	}
	if err := s.jobs.SetStatus(ctx, jobID, models.JobStatusFetching); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to mark job fetching")
	}

	text, fetchErr := s.fetcher.Fetch(ctx, &entry)
	if fetchErr != nil {
		entry.Status = models.URLStatusError
		entry.Error = fetchErr.Error()
		entry.Content = ""
		s.logger.Warn().
			Str("job_id", jobID).
			Str("url", entry.URL).
			Err(fetchErr).
			Msg("URL fetch failed")
	} else {
		entry.Status = models.URLStatusComplete
		entry.Content = text
		entry.Error = ""
		s.logger.Info().
			Str("job_id", jobID).
			Str("url", entry.URL).
			Int("content_length", len(text)).
			Msg("URL fetched")
	}
	entry.UpdatedAt = time.Now().UTC()
	if err := s.jobs.UpdateURLEntry(ctx, jobID, entry); err != nil {
		return fmt.Errorf("failed to store fetch outcome: %w", err)
	}

	// Advance the job from a fresh read: another executor may have finished
	// a different entry meanwhile.
	job, err = s.jobs.GetJob(ctx, jobID, s.staleAfter())
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	next := models.JobStatusURLsReady
	if job.AllEntriesTerminal() {
		next = models.JobStatusReadyForAnalysis
	}
	return s.jobs.SetStatus(ctx, jobID, next)
}
