package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
)

const systemPrompt = `You are a product lifecycle analyst for industrial automation parts.
Given excerpts from manufacturer and distributor pages about one part, decide whether the part is still in production.
Respond with a single JSON object and nothing else:
{"status": "ACTIVE" | "DISCONTINUED" | "UNKNOWN", "successor": "<model or empty>", "reason": "<one sentence>", "confidence": <0.0-1.0>}
Use UNKNOWN when the excerpts do not contain enough evidence either way.`

// ClaudeService implements the Classifier interface using the Anthropic API
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude classification service
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set via ANTHROPIC_API_KEY, OBSOLETA_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-haiku-3-5-20241022"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	service := &ClaudeService{
		config:    claudeConfig,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude classification service initialized")

	return service, nil
}

// Classify runs the analyze stage over the job's fetched content. On provider
// rate limits it returns interfaces.RateLimitError carrying the advisory
// reset delay; the usage signal is returned even alongside parse failures.
func (s *ClaudeService) Classify(ctx context.Context, job *models.Job) (*models.Classification, *interfaces.LLMUsage, error) {
	prompt, sources := buildPrompt(job)
	if prompt == "" {
		// Nothing fetched successfully; the classification is decided
		// without spending tokens.
		return &models.Classification{
			Status: models.ClassificationUnknown,
			Reason: "no source content available for analysis",
		}, nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Str("job_id", job.ID).
		Int("prompt_length", len(prompt)).
		Msg("Starting classification")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	var httpResp *http.Response
	resp, err := s.client.Messages.New(timeoutCtx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		if rateErr := asRateLimitError(err); rateErr != nil {
			s.logger.Warn().
				Str("job_id", job.ID).
				Int("retry_seconds", rateErr.RetrySeconds).
				Msg("Classification hit provider rate limit")
			return nil, usageFromResponse(nil, httpResp), rateErr
		}
		return nil, usageFromResponse(nil, httpResp), fmt.Errorf("Claude API call failed: %w", err)
	}

	usage := usageFromResponse(resp, httpResp)

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	classification, err := parseClassification(text.String())
	if err != nil {
		return nil, usage, fmt.Errorf("failed to parse classification response: %w", err)
	}
	classification.Sources = sources

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("status", classification.Status).
		Dur("duration", time.Since(startTime)).
		Msg("Classification completed")

	return classification, usage, nil
}

// buildPrompt concatenates the fetched content of all completed entries.
// Entries without content are skipped; their absence is the classifier's
// problem, not an error.
func buildPrompt(job *models.Job) (string, []string) {
	var sb strings.Builder
	var sources []string

	fmt.Fprintf(&sb, "Manufacturer: %s\nModel: %s\n\n", job.Maker, job.Model)

	for i := range job.URLs {
		entry := &job.URLs[i]
		if entry.Status != models.URLStatusComplete || entry.Content == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- Source %d: %s", entry.Index+1, entry.URL)
		if entry.Title != "" {
			fmt.Fprintf(&sb, " (%s)", entry.Title)
		}
		sb.WriteString(" ---\n")
		sb.WriteString(entry.Content)
		sb.WriteString("\n\n")
		sources = append(sources, entry.URL)
	}

	if len(sources) == 0 {
		return "", nil
	}
	return sb.String(), sources
}

// parseClassification extracts the JSON object from the model's response,
// tolerating surrounding prose or code fences
func parseClassification(text string) (*models.Classification, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var c models.Classification
	if err := json.Unmarshal([]byte(text[start:end+1]), &c); err != nil {
		return nil, err
	}

	switch c.Status {
	case models.ClassificationActive, models.ClassificationDiscontinued, models.ClassificationUnknown:
	default:
		return nil, fmt.Errorf("unexpected classification status %q", c.Status)
	}

	return &c, nil
}

// asRateLimitError maps an Anthropic 429 to the distinguished error subtype
func asRateLimitError(err error) *interfaces.RateLimitError {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return nil
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	retrySeconds := 60
	if apiErr.Response != nil {
		if retryAfter := apiErr.Response.Header.Get("retry-after"); retryAfter != "" {
			if n, convErr := strconv.Atoi(retryAfter); convErr == nil && n > 0 {
				retrySeconds = n
			}
		}
	}

	return &interfaces.RateLimitError{
		RetrySeconds: retrySeconds,
		Message:      "LLM rate limit exhausted",
	}
}

// usageFromResponse reads token usage from the message and the provider's
// remaining-token header when present
func usageFromResponse(msg *anthropic.Message, httpResp *http.Response) *interfaces.LLMUsage {
	usage := &interfaces.LLMUsage{TokensRemaining: -1}
	if msg != nil {
		usage.InputTokens = int(msg.Usage.InputTokens)
		usage.OutputTokens = int(msg.Usage.OutputTokens)
	}
	if httpResp != nil {
		if remaining := httpResp.Header.Get("anthropic-ratelimit-tokens-remaining"); remaining != "" {
			if n, err := strconv.Atoi(remaining); err == nil {
				usage.TokensRemaining = n
			}
		}
	}
	if msg == nil && httpResp == nil {
		return nil
	}
	return usage
}
