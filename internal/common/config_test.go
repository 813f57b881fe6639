package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Server.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", config.Server.Port)
	}
	if config.Poller.Interval != 2*time.Second || config.Poller.MaxIterations != 60 {
		t.Errorf("Unexpected poller defaults: %+v", config.Poller)
	}
	if config.AutoCheck.Enabled {
		t.Error("Expected auto-check disabled by default")
	}
	if config.AutoCheck.Timezone != "Asia/Tokyo" {
		t.Errorf("Expected Asia/Tokyo reset boundary, got %s", config.AutoCheck.Timezone)
	}
	if config.Search.CreditsPerDay != 100 || config.Search.CreditsFloor != 10 {
		t.Errorf("Unexpected search quota defaults: %+v", config.Search)
	}
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	if err := os.WriteFile(base, []byte(`
[server]
port = 9000

[autocheck]
enabled = true
daily_ceiling = 25
`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(override, []byte(`
[server]
port = 9100
`), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	// Later files win; untouched settings fall through to earlier layers
	if config.Server.Port != 9100 {
		t.Errorf("Expected later file to win, got port %d", config.Server.Port)
	}
	if !config.AutoCheck.Enabled || config.AutoCheck.DailyCeiling != 25 {
		t.Errorf("Expected base-file autocheck settings retained, got %+v", config.AutoCheck)
	}
	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host retained, got %s", config.Server.Host)
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	if _, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OBSOLETA_SERVER_PORT", "9999")
	t.Setenv("OBSOLETA_SEARCH_API_KEY", "env-search-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	t.Setenv("OBSOLETA_AUTOCHECK_ENABLED", "true")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if config.Server.Port != 9999 {
		t.Errorf("Expected env port override, got %d", config.Server.Port)
	}
	if config.Search.APIKey != "env-search-key" {
		t.Errorf("Expected env search key, got %q", config.Search.APIKey)
	}
	if config.Claude.APIKey != "env-anthropic-key" {
		t.Errorf("Expected ANTHROPIC_API_KEY honored, got %q", config.Claude.APIKey)
	}
	if !config.AutoCheck.Enabled {
		t.Error("Expected env autocheck enable")
	}
}

func TestClaudeKeySpecificEnvWins(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "generic")
	t.Setenv("OBSOLETA_CLAUDE_API_KEY", "specific")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if config.Claude.APIKey != "specific" {
		t.Errorf("Expected service-specific key to win, got %q", config.Claude.APIKey)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 7070, "0.0.0.0")
	if config.Server.Port != 7070 || config.Server.Host != "0.0.0.0" {
		t.Errorf("Flag overrides not applied: %+v", config.Server)
	}

	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != 7070 || config.Server.Host != "0.0.0.0" {
		t.Errorf("Zero-valued flags must not reset settings: %+v", config.Server)
	}
}

func TestBaseURL(t *testing.T) {
	config := NewDefaultConfig()
	if got := config.BaseURL(); got != "http://localhost:8090" {
		t.Errorf("Expected assembled base URL, got %s", got)
	}

	config.Server.BaseURL = "https://eol.example.com"
	if got := config.BaseURL(); got != "https://eol.example.com" {
		t.Errorf("Expected explicit base URL, got %s", got)
	}
}
