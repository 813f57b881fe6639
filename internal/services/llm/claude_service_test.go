package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/models"
)

func TestParseClassificationPlainJSON(t *testing.T) {
	c, err := parseClassification(`{"status": "DISCONTINUED", "successor": "E3X-NA41", "reason": "production ended 2020", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if c.Status != models.ClassificationDiscontinued {
		t.Errorf("Expected DISCONTINUED, got %s", c.Status)
	}
	if c.Successor != "E3X-NA41" {
		t.Errorf("Expected successor E3X-NA41, got %q", c.Successor)
	}
	if c.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %v", c.Confidence)
	}
}

func TestParseClassificationCodeFence(t *testing.T) {
	c, err := parseClassification("```json\n{\"status\": \"ACTIVE\", \"reason\": \"listed in current catalogue\"}\n```")
	if err != nil {
		t.Fatalf("Failed to parse fenced JSON: %v", err)
	}
	if c.Status != models.ClassificationActive {
		t.Errorf("Expected ACTIVE, got %s", c.Status)
	}
}

func TestParseClassificationProseWrapped(t *testing.T) {
	c, err := parseClassification(`Based on the sources, here is my assessment: {"status": "UNKNOWN", "reason": "no lifecycle statement found"} I hope that helps.`)
	if err != nil {
		t.Fatalf("Failed to parse prose-wrapped JSON: %v", err)
	}
	if c.Status != models.ClassificationUnknown {
		t.Errorf("Expected UNKNOWN, got %s", c.Status)
	}
}

func TestParseClassificationRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no JSON", "the part is discontinued"},
		{"empty", ""},
		{"invalid status", `{"status": "RETIRED", "reason": "x"}`},
		{"malformed JSON", `{"status": "ACTIVE",`},
	}
	for _, tc := range cases {
		if _, err := parseClassification(tc.text); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestBuildPromptUsesOnlyCompletedEntries(t *testing.T) {
	job := &models.Job{
		ID:    "job_prompt",
		Maker: "Omron",
		Model: "E3X-NA11",
		URLs: []models.URLEntry{
			{Index: 0, URL: "https://example.com/a", Title: "Datasheet", Status: models.URLStatusComplete, Content: "Production ended in 2020."},
			{Index: 1, URL: "https://example.com/b", Status: models.URLStatusError, Error: "timeout"},
			{Index: 2, URL: "https://example.com/c", Status: models.URLStatusComplete, Content: ""},
		},
	}

	prompt, sources := buildPrompt(job)
	if prompt == "" {
		t.Fatal("Expected non-empty prompt")
	}
	if !strings.Contains(prompt, "Manufacturer: Omron") || !strings.Contains(prompt, "Model: E3X-NA11") {
		t.Error("Expected part identity in prompt")
	}
	if !strings.Contains(prompt, "Production ended in 2020.") {
		t.Error("Expected completed entry content in prompt")
	}
	if strings.Contains(prompt, "example.com/b") || strings.Contains(prompt, "example.com/c") {
		t.Error("Expected failed and empty entries excluded from prompt")
	}
	if len(sources) != 1 || sources[0] != "https://example.com/a" {
		t.Errorf("Expected single source, got %v", sources)
	}
}

func TestBuildPromptNoUsableContent(t *testing.T) {
	job := &models.Job{
		ID:    "job_empty_prompt",
		Maker: "Omron",
		Model: "E3X-NA11",
		URLs: []models.URLEntry{
			{Index: 0, URL: "https://example.com/a", Status: models.URLStatusError, Error: "timeout"},
		},
	}

	prompt, sources := buildPrompt(job)
	if prompt != "" || sources != nil {
		t.Errorf("Expected empty prompt for job without usable content, got %q / %v", prompt, sources)
	}
}

func TestNewClaudeServiceValidation(t *testing.T) {
	logger := arbor.NewLogger()

	if _, err := NewClaudeService(&common.ClaudeConfig{Timeout: "30s"}, logger); err == nil {
		t.Error("Expected error for missing API key")
	}
	if _, err := NewClaudeService(&common.ClaudeConfig{APIKey: "sk-test", Timeout: "not-a-duration"}, logger); err == nil {
		t.Error("Expected error for invalid timeout")
	}

	service, err := NewClaudeService(&common.ClaudeConfig{APIKey: "sk-test", Timeout: "45s"}, logger)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	if service.timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %v", service.timeout)
	}
	if service.maxTokens != 4096 {
		t.Errorf("Expected default max tokens 4096, got %d", service.maxTokens)
	}
}
