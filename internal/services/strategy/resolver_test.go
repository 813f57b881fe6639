package strategy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/models"
)

const testUserAgent = "obsoleta-test/1.0"

func newTestResolver() *Resolver {
	return NewResolver(testUserAgent, 5*time.Second, 0, arbor.NewLogger())
}

// withRegistryEntry installs a temporary manufacturer entry for the duration
// of a test. The registry is a package-level map, so tests must not run this
// in parallel.
func withRegistryEntry(t *testing.T, maker string, desc Descriptor) {
	t.Helper()
	registry[maker] = desc
	t.Cleanup(func() { delete(registry, maker) })
}

func TestResolveUnknownMakerReturnsNil(t *testing.T) {
	r := newTestResolver()
	if s := r.Resolve(context.Background(), "Acme Robotics", "X-1000"); s != nil {
		t.Errorf("Expected nil strategy for unknown maker, got %+v", s)
	}
}

func TestResolveValidationNoneSkipsProbe(t *testing.T) {
	probed := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = true
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp none", Descriptor{
		URLTemplate: server.URL + "/search?q={model}",
		Method:      models.ScrapingMethodSiteSearch,
		Validation:  ValidationNone,
		ModelHint:   true,
	})

	s := newTestResolver().Resolve(context.Background(), "TestCorp None", "FX-100")
	if s == nil {
		t.Fatal("Expected a strategy")
	}
	if probed {
		t.Error("Expected no probe for validation-free entry")
	}
	if s.ScrapingMethod != models.ScrapingMethodSiteSearch {
		t.Errorf("Expected site_search method, got %s", s.ScrapingMethod)
	}
	if s.Hints == nil || s.Hints.Model != "FX-100" {
		t.Errorf("Expected model hint FX-100, got %+v", s.Hints)
	}
	if s.Content != "" {
		t.Errorf("Expected no pre-attached content, got %q", s.Content)
	}
}

func TestResolveNoResultsSuccessAttachesContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != testUserAgent {
			t.Errorf("Expected probe user agent %q, got %q", testUserAgent, got)
		}
		w.Write([]byte("<html><body><h1>FX-100 Sensor</h1><p>Production ended March 2024.</p></body></html>"))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp results", Descriptor{
		URLTemplate:      server.URL + "/search?q={model}",
		Method:           models.ScrapingMethodHTTPDirect,
		Validation:       ValidationNoResults,
		NoResultsMarkers: []string{"No products matched"},
	})

	s := newTestResolver().Resolve(context.Background(), "TestCorp Results", "FX-100")
	if s == nil {
		t.Fatal("Expected a strategy")
	}
	if !strings.Contains(s.Content, "Production ended March 2024") {
		t.Errorf("Expected probe content attached, got %q", s.Content)
	}
}

func TestResolveNoResultsMarkerFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>No products matched your search.</body></html>"))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp empty", Descriptor{
		URLTemplate:      server.URL + "/search?q={model}",
		Method:           models.ScrapingMethodHTTPDirect,
		Validation:       ValidationNoResults,
		NoResultsMarkers: []string{"No products matched"},
	})

	if s := newTestResolver().Resolve(context.Background(), "TestCorp Empty", "FX-100"); s != nil {
		t.Errorf("Expected nil on no-results marker, got %+v", s)
	}
}

func TestResolveProbeFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp broken", Descriptor{
		URLTemplate:      server.URL + "/search?q={model}",
		Method:           models.ScrapingMethodHTTPDirect,
		Validation:       ValidationNoResults,
		NoResultsMarkers: []string{"No products matched"},
	})

	if s := newTestResolver().Resolve(context.Background(), "TestCorp Broken", "FX-100"); s != nil {
		t.Errorf("Expected nil on probe failure, got %+v", s)
	}
}

func TestResolveExtractionFollowsDetailLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a class="product" href="/detail/fx-100.html">FX-100</a></body></html>`))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp detail", Descriptor{
		URLTemplate:        server.URL + "/search?q={model}",
		Method:             models.ScrapingMethodRenderer,
		Validation:         ValidationExtraction,
		DetailLinkSelector: "a.product",
	})

	s := newTestResolver().Resolve(context.Background(), "TestCorp Detail", "FX-100")
	if s == nil {
		t.Fatal("Expected a strategy")
	}
	expected := server.URL + "/detail/fx-100.html"
	if s.URL != expected {
		t.Errorf("Expected detail URL %q, got %q", expected, s.URL)
	}
}

func TestResolveExtractionNoLinkFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Nothing relevant here.</p></body></html>`))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp nolink", Descriptor{
		URLTemplate:        server.URL + "/search?q={model}",
		Method:             models.ScrapingMethodRenderer,
		Validation:         ValidationExtraction,
		DetailLinkSelector: "a.product",
	})

	if s := newTestResolver().Resolve(context.Background(), "TestCorp NoLink", "FX-100"); s != nil {
		t.Errorf("Expected nil when no detail link matches, got %+v", s)
	}
}

func TestResolveNotFoundMarkerFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Page Not Found</body></html>"))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp gone", Descriptor{
		URLTemplate:     server.URL + "/{model}.html",
		Method:          models.ScrapingMethodRenderer,
		Validation:      ValidationNotFound,
		NotFoundMarkers: []string{"Page Not Found"},
	})

	if s := newTestResolver().Resolve(context.Background(), "TestCorp Gone", "FX-100"); s != nil {
		t.Errorf("Expected nil on not-found marker, got %+v", s)
	}
}

func TestResolveNotFoundSuccessKeepsCandidateURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><h1>FX-100</h1></body></html>"))
	}))
	defer server.Close()

	withRegistryEntry(t, "testcorp alive", Descriptor{
		URLTemplate:     server.URL + "/products/{model}.html",
		Method:          models.ScrapingMethodRenderer,
		Validation:      ValidationNotFound,
		NotFoundMarkers: []string{"Page Not Found"},
		JPURLTemplate:   server.URL + "/jp/{model}.html",
	})

	s := newTestResolver().Resolve(context.Background(), "TestCorp Alive", "FX-100")
	if s == nil {
		t.Fatal("Expected a strategy")
	}
	if s.URL != server.URL+"/products/FX-100.html" {
		t.Errorf("Unexpected strategy URL %q", s.URL)
	}
	if s.Hints == nil || s.Hints.JPURL != server.URL+"/jp/FX-100.html" {
		t.Errorf("Expected JP locale hint, got %+v", s.Hints)
	}
	if s.Content != "" {
		t.Error("Expected not-found validation to leave fetching to the fetch stage")
	}
}
