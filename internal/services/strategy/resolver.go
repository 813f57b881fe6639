package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/httpclient"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/content"
)

// Strategy is a resolved plan for how a job's first URL is obtained
type Strategy struct {
	URL            string
	ScrapingMethod models.ScrapingMethod
	Hints          *models.StrategyHints
	// Content is pre-attached extracted text when the validating probe
	// already retrieved the page; the fetch stage is short-circuited
	Content string
}

// Resolver decides whether a manufacturer-specific URL can be used for a job,
// probing candidate URLs when the registry entry requires validation.
// Resolution failure is never an error: the caller falls back to generic
// search.
type Resolver struct {
	client    *http.Client
	processor *content.Processor
	userAgent string
	logger    arbor.ILogger
}

// NewResolver creates a strategy resolver
func NewResolver(userAgent string, probeTimeout time.Duration, maxContentLength int, logger arbor.ILogger) *Resolver {
	if probeTimeout <= 0 {
		probeTimeout = 15 * time.Second
	}
	return &Resolver{
		client:    httpclient.NewDefaultHTTPClient(probeTimeout),
		processor: content.NewProcessor(maxContentLength),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Resolve returns the manufacturer-specific strategy for the part, or nil
// when the job should use generic search instead. Probe failures of any kind
// degrade to nil; a transient network error must never abort job creation.
func (r *Resolver) Resolve(ctx context.Context, maker, model string) *Strategy {
	desc, ok := Lookup(maker)
	if !ok {
		return nil
	}

	candidateURL := expandTemplate(desc.URLTemplate, model)
	strategy := &Strategy{
		URL:            candidateURL,
		ScrapingMethod: desc.Method,
		Hints:          buildHints(desc, model),
	}

	if desc.Validation == ValidationNone {
		return strategy
	}

	body, err := r.probe(ctx, candidateURL)
	if err != nil {
		r.logger.Warn().
			Str("maker", maker).
			Str("url", candidateURL).
			Err(err).
			Msg("Strategy probe failed, falling back to generic search")
		return nil
	}

	switch desc.Validation {
	case ValidationExtraction:
		detailURL, ok := r.extractDetailLink(body, candidateURL, desc.DetailLinkSelector)
		if !ok {
			r.logger.Debug().
				Str("maker", maker).
				Str("model", model).
				Msg("Probe found no product-detail link, falling back to generic search")
			return nil
		}
		strategy.URL = detailURL
		return strategy

	case ValidationNotFound:
		if containsAny(body, desc.NotFoundMarkers) {
			r.logger.Debug().
				Str("maker", maker).
				Str("model", model).
				Msg("Probe hit not-found marker, falling back to generic search")
			return nil
		}
		return strategy

	default: // ValidationNoResults
		if containsAny(body, desc.NoResultsMarkers) {
			r.logger.Debug().
				Str("maker", maker).
				Str("model", model).
				Msg("Probe hit no-results marker, falling back to generic search")
			return nil
		}
		// The probe already has the page; attach its content so the fetch
		// stage is skipped for this entry.
		extracted, err := r.processor.Extract(body)
		if err != nil || extracted == "" {
			r.logger.Warn().
				Str("maker", maker).
				Err(err).
				Msg("Probe content extraction failed, falling back to generic search")
			return nil
		}
		strategy.Content = extracted
		return strategy
	}
}

// probe performs the synchronous validation fetch
func (r *Resolver) probe(ctx context.Context, probeURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read probe response: %w", err)
	}

	return string(body), nil
}

// extractDetailLink parses the probe response for a product-detail link
func (r *Resolver) extractDetailLink(body, baseURL, selector string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	href, exists := doc.Find(selector).First().Attr("href")
	if !exists || href == "" {
		return "", false
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return href, true
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func buildHints(desc Descriptor, model string) *models.StrategyHints {
	hints := &models.StrategyHints{}
	if desc.ModelHint {
		hints.Model = model
	}
	if desc.JPURLTemplate != "" {
		hints.JPURL = expandTemplate(desc.JPURLTemplate, model)
	}
	if desc.USURLTemplate != "" {
		hints.USURL = expandTemplate(desc.USURLTemplate, model)
	}
	if hints.Model == "" && hints.JPURL == "" && hints.USURL == "" {
		return nil
	}
	return hints
}

func expandTemplate(template, model string) string {
	return strings.ReplaceAll(template, "{model}", url.QueryEscape(model))
}

func containsAny(body string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
