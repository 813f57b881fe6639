package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
)

func newTestService(endpoint string) *Service {
	return NewService(&common.SearchConfig{
		APIKey:         "test-key",
		EngineID:       "test-engine",
		Endpoint:       endpoint,
		RequestTimeout: 5 * time.Second,
		MaxResults:     5,
		CreditsPerDay:  100,
		PreferDomains:  []string{"omron.com", "keyence.co.jp"},
	}, arbor.NewLogger())
}

func TestSearchMapsResults(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("key") != "test-key" || r.URL.Query().Get("cx") != "test-engine" {
			t.Errorf("Missing credentials in query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"items": [
			{"title": "E3X-NA11 Discontinued", "link": "https://omron.com/e3x", "snippet": "Production ended"},
			{"title": "no link item", "link": "", "snippet": "skipped"},
			{"title": "Successor info", "link": "https://omron.com/e3x-na41", "snippet": "Replacement model"}
		]}`))
	}))
	defer server.Close()

	service := newTestService(server.URL)
	results, err := service.Search(context.Background(), "Omron", "E3X-NA11")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results (link-less item dropped), got %d", len(results))
	}
	if results[0].URL != "https://omron.com/e3x" || results[0].Title != "E3X-NA11 Discontinued" {
		t.Errorf("Unexpected first result: %+v", results[0])
	}

	if !strings.Contains(gotQuery, `"Omron"`) || !strings.Contains(gotQuery, `"E3X-NA11"`) {
		t.Errorf("Expected quoted part identity in query, got %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "site:omron.com") {
		t.Errorf("Expected domain bias in query, got %q", gotQuery)
	}

	if service.CreditsRemaining() != 99 {
		t.Errorf("Expected credits decremented to 99, got %d", service.CreditsRemaining())
	}
}

func TestSearchZeroResultsIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	results, err := newTestService(server.URL).Search(context.Background(), "Omron", "NONEXISTENT-99")
	if err != nil {
		t.Fatalf("Expected no error for zero results, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty result set, got %d", len(results))
	}
}

func TestSearchQuotaExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := newTestService(server.URL)
	_, err := service.Search(context.Background(), "Omron", "E3X-NA11")

	var rateErr *interfaces.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
	if rateErr.RetrySeconds <= 0 {
		t.Errorf("Expected positive retry delay, got %d", rateErr.RetrySeconds)
	}
	if service.CreditsRemaining() != 0 {
		t.Errorf("Expected credits zeroed on quota exhaustion, got %d", service.CreditsRemaining())
	}
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend exploded"))
	}))
	defer server.Close()

	_, err := newTestService(server.URL).Search(context.Background(), "Omron", "E3X-NA11")
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	var rateErr *interfaces.RateLimitError
	if errors.As(err, &rateErr) {
		t.Error("Expected a plain error, not RateLimitError, for server failures")
	}
}

func TestSearchQuotaHeaderOverridesEstimate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	service := newTestService(server.URL)
	if _, err := service.Search(context.Background(), "Omron", "E3X-NA11"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if service.CreditsRemaining() != 7 {
		t.Errorf("Expected credits from quota header (7), got %d", service.CreditsRemaining())
	}
}

func TestSearchUnconfigured(t *testing.T) {
	service := NewService(&common.SearchConfig{RequestTimeout: time.Second}, arbor.NewLogger())
	if _, err := service.Search(context.Background(), "Omron", "E3X-NA11"); err == nil {
		t.Error("Expected error when API key and engine ID are missing")
	}
}
