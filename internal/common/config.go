package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Search      SearchConfig    `toml:"search"`
	Claude      ClaudeConfig    `toml:"claude"`
	Fetch       FetchConfig     `toml:"fetch"`
	Poller      PollerConfig    `toml:"poller"`
	AutoCheck   AutoCheckConfig `toml:"autocheck"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// BaseURL is the address stage triggers call back into. Empty means
	// http://<host>:<port> assembled at startup.
	BaseURL string `toml:"base_url"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SearchConfig contains configuration for the generic web search API
type SearchConfig struct {
	APIKey         string        `toml:"api_key"`          // Search API key
	EngineID       string        `toml:"engine_id"`        // Programmable search engine ID
	Endpoint       string        `toml:"endpoint"`         // Search API endpoint (default Google CSE)
	MaxResults     int           `toml:"max_results"`      // Result count per query (default 5)
	RateLimit      time.Duration `toml:"rate_limit"`       // Minimum time between API requests
	RequestTimeout time.Duration `toml:"request_timeout"`  // HTTP request timeout
	PreferDomains  []string      `toml:"prefer_domains"`   // Manufacturer domains biased in the query
	CreditsFloor   int           `toml:"credits_floor"`    // Remaining-credits floor below which scheduled runs stop
	CreditsPerDay  int           `toml:"credits_per_day"`  // Advertised daily quota, used to seed remaining credits
}

// ClaudeConfig contains Anthropic Claude API configuration for the analyze stage
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for classification (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0)
}

// FetchConfig controls the direct-HTTP fetch executor and delegation of
// renderer-backed scraping methods to an external executor.
type FetchConfig struct {
	UserAgent      string        `toml:"user_agent"`      // User agent for direct fetches and probes
	RequestTimeout time.Duration `toml:"request_timeout"` // Direct fetch timeout
	MaxBodySize    int           `toml:"max_body_size"`   // Maximum response body size in bytes
	ExecutorURL    string        `toml:"executor_url"`    // External executor endpoint for renderer scraping methods
	TriggerTimeout time.Duration `toml:"trigger_timeout"` // Per-call timeout for fire-and-forget stage triggers
}

// PollerConfig controls the polling driver state machine
type PollerConfig struct {
	Interval      time.Duration `toml:"interval"`       // Sleep between iterations (default 2s)
	MaxIterations int           `toml:"max_iterations"` // Hard iteration budget (default 60)
}

// AutoCheckConfig controls the scheduled daily driver
type AutoCheckConfig struct {
	Enabled      bool   `toml:"enabled"`       // Register the cron job at startup
	Schedule     string `toml:"schedule"`      // Cron schedule (default "0 3 * * *")
	DailyCeiling int    `toml:"daily_ceiling"` // Max EOL checks per day
	Timezone     string `toml:"timezone"`      // Daily counter reset boundary timezone
	StaleAfter   time.Duration `toml:"stale_after"` // Stuck-run staleness window (default 5m)
	RetentionDays int          `toml:"retention_days"` // Job retention for opportunistic cleanup (default 14)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in obsoleta.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/obsoleta",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Search: SearchConfig{
			Endpoint:       "https://www.googleapis.com/customsearch/v1",
			MaxResults:     5,
			RateLimit:      time.Second,
			RequestTimeout: 15 * time.Second,
			CreditsFloor:   10,
			CreditsPerDay:  100,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Timeout:     "5m",
			Temperature: 0,
		},
		Fetch: FetchConfig{
			UserAgent:      "obsoleta/1.0 (+https://github.com/ternarybob/obsoleta)",
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    2 * 1024 * 1024,
			TriggerTimeout: 90 * time.Second,
		},
		Poller: PollerConfig{
			Interval:      2 * time.Second,
			MaxIterations: 60,
		},
		AutoCheck: AutoCheckConfig{
			Enabled:       false,
			Schedule:      "0 3 * * *",
			DailyCeiling:  50,
			Timezone:      "Asia/Tokyo",
			StaleAfter:    5 * time.Minute,
			RetentionDays: 14,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("OBSOLETA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("OBSOLETA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("OBSOLETA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if baseURL := os.Getenv("OBSOLETA_SERVER_BASE_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	if badgerPath := os.Getenv("OBSOLETA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("OBSOLETA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if apiKey := os.Getenv("OBSOLETA_SEARCH_API_KEY"); apiKey != "" {
		config.Search.APIKey = apiKey
	}
	if engineID := os.Getenv("OBSOLETA_SEARCH_ENGINE_ID"); engineID != "" {
		config.Search.EngineID = engineID
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("OBSOLETA_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("OBSOLETA_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if executorURL := os.Getenv("OBSOLETA_FETCH_EXECUTOR_URL"); executorURL != "" {
		config.Fetch.ExecutorURL = executorURL
	}

	if schedule := os.Getenv("OBSOLETA_AUTOCHECK_SCHEDULE"); schedule != "" {
		config.AutoCheck.Schedule = schedule
	}
	if enabled := os.Getenv("OBSOLETA_AUTOCHECK_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.AutoCheck.Enabled = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// BaseURL returns the configured callback base URL, assembling one from
// host/port when not set explicitly.
func (c *Config) BaseURL() string {
	if c.Server.BaseURL != "" {
		return c.Server.BaseURL
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
