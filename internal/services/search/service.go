// Package search wraps the metered web search API used to discover candidate
// pages when no manufacturer-specific strategy resolves.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/httpclient"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"golang.org/x/time/rate"
)

// Service implements interfaces.SearchProvider against a programmable search
// engine endpoint (Google CSE wire format).
type Service struct {
	config  *common.SearchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger

	mu               sync.Mutex
	creditsRemaining int
}

// NewService creates a search service. Remaining credits are seeded from the
// configured daily quota and decremented per issued query; the API's own
// quota headers override the local estimate when present.
func NewService(config *common.SearchConfig, logger arbor.ILogger) *Service {
	interval := config.RateLimit
	if interval <= 0 {
		interval = 0
	}

	var limiter *rate.Limiter
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &Service{
		config:           config,
		client:           httpclient.NewDefaultHTTPClient(config.RequestTimeout),
		limiter:          limiter,
		logger:           logger,
		creditsRemaining: config.CreditsPerDay,
	}
}

// cseResponse is the subset of the search API response we consume
type cseResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search issues one query for the part. Zero results is not an error; a
// transport or API failure is.
func (s *Service) Search(ctx context.Context, maker, model string) ([]interfaces.SearchResult, error) {
	if s.config.APIKey == "" || s.config.EngineID == "" {
		return nil, fmt.Errorf("search API is not configured (api_key / engine_id)")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limiter: %w", err)
	}

	query := s.buildQuery(maker, model)

	params := url.Values{}
	params.Set("key", s.config.APIKey)
	params.Set("cx", s.config.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(s.maxResults()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		s.setCredits(0)
		return nil, &interfaces.RateLimitError{RetrySeconds: 3600, Message: "search API quota exhausted"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	s.recordUsage(resp)

	var parsed cseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]interfaces.SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, interfaces.SearchResult{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}

	s.logger.Debug().
		Str("maker", maker).
		Str("model", model).
		Int("results", len(results)).
		Msg("Search query completed")

	return results, nil
}

// CreditsRemaining reports the remaining daily quota estimate
func (s *Service) CreditsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditsRemaining
}

// buildQuery biases the query toward known manufacturer domains so lifecycle
// pages outrank distributor listings
func (s *Service) buildQuery(maker, model string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%q %q discontinued OR 生産終了 OR 後継", maker, model))
	if len(s.config.PreferDomains) > 0 {
		terms := make([]string, 0, len(s.config.PreferDomains))
		for _, d := range s.config.PreferDomains {
			terms = append(terms, "site:"+d)
		}
		sb.WriteString(" (" + strings.Join(terms, " OR ") + ")")
	}
	return sb.String()
}

func (s *Service) maxResults() int {
	if s.config.MaxResults > 0 && s.config.MaxResults <= 10 {
		return s.config.MaxResults
	}
	return 5
}

// recordUsage decrements the local credits estimate and honors quota headers
func (s *Service) recordUsage(resp *http.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creditsRemaining > 0 {
		s.creditsRemaining--
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			s.creditsRemaining = n
		}
	}
}

func (s *Service) setCredits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditsRemaining = n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
