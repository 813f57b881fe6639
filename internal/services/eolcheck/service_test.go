package eolcheck

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
	"github.com/ternarybob/obsoleta/internal/services/strategy"
	badgerstorage "github.com/ternarybob/obsoleta/internal/storage/badger"
)

// Mock resolver with configurable behavior
type mockResolver struct {
	resolveFunc func(ctx context.Context, maker, model string) *strategy.Strategy
}

func (m *mockResolver) Resolve(ctx context.Context, maker, model string) *strategy.Strategy {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, maker, model)
	}
	return nil
}

// Mock search provider with configurable behavior
type mockSearch struct {
	searchFunc func(ctx context.Context, maker, model string) ([]interfaces.SearchResult, error)
	credits    int
}

func (m *mockSearch) Search(ctx context.Context, maker, model string) ([]interfaces.SearchResult, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, maker, model)
	}
	return nil, nil
}

func (m *mockSearch) CreditsRemaining() int {
	return m.credits
}

// Mock fetch executor with configurable behavior
type mockFetcher struct {
	fetchFunc func(ctx context.Context, entry *models.URLEntry) (string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, entry *models.URLEntry) (string, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, entry)
	}
	return "fetched content", nil
}

// Mock classifier with configurable behavior
type mockClassifier struct {
	classifyFunc func(ctx context.Context, job *models.Job) (*models.Classification, *interfaces.LLMUsage, error)
	calls        int
}

func (m *mockClassifier) Classify(ctx context.Context, job *models.Job) (*models.Classification, *interfaces.LLMUsage, error) {
	m.calls++
	if m.classifyFunc != nil {
		return m.classifyFunc(ctx, job)
	}
	return &models.Classification{Status: models.ClassificationActive, Reason: "listed in catalogue"}, nil, nil
}

type serviceFixture struct {
	service    *Service
	jobs       interfaces.JobStorage
	resolver   *mockResolver
	search     *mockSearch
	fetcher    *mockFetcher
	classifier *mockClassifier
	config     *common.Config
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := badgerstorage.NewJobStorage(db, logger)

	config := common.NewDefaultConfig()
	config.Poller.Interval = 5 * time.Millisecond
	config.Poller.MaxIterations = 10
	config.AutoCheck.RetentionDays = 14

	f := &serviceFixture{
		jobs:       jobs,
		resolver:   &mockResolver{},
		search:     &mockSearch{credits: 100},
		fetcher:    &mockFetcher{},
		classifier: &mockClassifier{},
		config:     config,
	}
	f.service = NewService(config, jobs, f.resolver, f.search, f.fetcher, f.classifier, nil, nil, logger)
	return f
}

// withTriggers points the fixture's trigger client at a test server
func (f *serviceFixture) withTriggers(t *testing.T, baseURL string) {
	t.Helper()
	f.service.triggers = NewTriggerClient(baseURL, 2*time.Second, arbor.NewLogger())
}

// testStoredJob builds a job record ready to be saved directly into storage
func testStoredJob(id string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:     id,
		Maker:  "Omron",
		Model:  "E3X-NA11",
		Status: models.JobStatusURLsReady,
		URLs: []models.URLEntry{
			{Index: 0, URL: "https://example.com/a", Status: models.URLStatusPending, ScrapingMethod: models.ScrapingMethodHTTPDirect, UpdatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
