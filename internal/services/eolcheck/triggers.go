package eolcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/httpclient"
	"github.com/ternarybob/obsoleta/internal/models"
)

// TriggerOutcome is the three-valued result of dispatching a stage trigger.
// A timed-out call is not a failure: the stage endpoint answers 202 before
// doing the work, so a client-side timeout means the request most likely
// landed and the stage is running.
type TriggerOutcome int

const (
	TriggerAccepted TriggerOutcome = iota
	TriggerFailed
	TriggerAssumedInProgress
)

func (o TriggerOutcome) String() string {
	switch o {
	case TriggerAccepted:
		return "accepted"
	case TriggerFailed:
		return "failed"
	case TriggerAssumedInProgress:
		return "assumed_in_progress"
	}
	return "unknown"
}

const triggerRetries = 2

// TriggerClient dispatches fire-and-forget stage triggers back into the
// service's own HTTP API. Going through HTTP rather than calling the stage
// directly keeps the stages restart-safe and lets an external executor host
// them unchanged.
type TriggerClient struct {
	client  *http.Client
	baseURL string
	logger  arbor.ILogger
}

// NewTriggerClient creates a trigger client aimed at baseURL
func NewTriggerClient(baseURL string, timeout time.Duration, logger arbor.ILogger) *TriggerClient {
	return &TriggerClient{
		client:  httpclient.NewTriggerHTTPClient(timeout),
		baseURL: baseURL,
		logger:  logger,
	}
}

// TriggerFetch dispatches the fetch stage for one pending URL entry. The
// entry rides along in the body so the stage endpoint does not need a second
// store read to know what to fetch; the executor still re-checks the stored
// entry before doing any work.
func (t *TriggerClient) TriggerFetch(ctx context.Context, jobID string, entry models.URLEntry) TriggerOutcome {
	body, err := json.Marshal(entry)
	if err != nil {
		t.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to encode fetch trigger payload")
		return TriggerFailed
	}
	return t.trigger(ctx, fmt.Sprintf("/api/jobs/%s/fetch", jobID), body)
}

// TriggerAnalyze dispatches the analyze stage for a job
func (t *TriggerClient) TriggerAnalyze(ctx context.Context, jobID string) TriggerOutcome {
	return t.trigger(ctx, fmt.Sprintf("/api/jobs/%s/analyze", jobID), nil)
}

// trigger POSTs to the stage endpoint with a small number of retries on
// definite failures. Timeouts short-circuit to AssumedInProgress without
// retrying, since a retry would double-dispatch a stage that is probably
// already running.
func (t *TriggerClient) trigger(ctx context.Context, path string, body []byte) TriggerOutcome {
	url := t.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= triggerRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return TriggerAssumedInProgress
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			t.logger.Error().Err(err).Str("url", url).Msg("Failed to build trigger request")
			return TriggerFailed
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if httpclient.IsTimeout(err) {
				t.logger.Debug().Str("url", url).Msg("Trigger timed out, assuming stage in progress")
				return TriggerAssumedInProgress
			}
			lastErr = err
			t.logger.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("Trigger request failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return TriggerAccepted
		}
		lastErr = fmt.Errorf("trigger returned status %d", resp.StatusCode)
		t.logger.Warn().Str("url", url).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Trigger rejected")
	}

	t.logger.Error().Err(lastErr).Str("url", url).Msg("Trigger failed after retries")
	return TriggerFailed
}
