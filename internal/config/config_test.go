package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndAppliesEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("AURA_API_URL", "https://studio.example.com/")
	t.Setenv("AURA_TOKEN", " tok ")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.API.BaseURL != "https://studio.example.com" {
		t.Fatalf("unexpected base url: %q", cfg.API.BaseURL)
	}
	if cfg.API.Token != "tok" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "aura")
	if cfg.State.Dir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.State.Dir, wantState)
	}
	if cfg.StatePath() != filepath.Join(wantState, "state.db") {
		t.Fatalf("unexpected state path: %q", cfg.StatePath())
	}
	if cfg.API.RetryAttempts != 3 || cfg.API.RetryDelayMS != 1000 || cfg.API.TimeoutMS != 30000 {
		t.Fatalf("unexpected api defaults: %+v", cfg.API)
	}
	if !cfg.API.CacheEnabled || cfg.API.CacheTTLMS != 300000 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.API)
	}
	if cfg.Stream.MaxReconnectAttempts != 10 || cfg.Stream.Path != "/stream" {
		t.Fatalf("unexpected stream defaults: %+v", cfg.Stream)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("AURA_API_URL", "")
	t.Setenv("AURA_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		API struct {
			BaseURL       string `toml:"base_url"`
			RetryAttempts int    `toml:"retry_attempts"`
		} `toml:"api"`
		Stream struct {
			Path                 string `toml:"path"`
			MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
		} `toml:"stream"`
		State struct {
			Dir string `toml:"dir"`
		} `toml:"state"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}{}
	payload.API.BaseURL = "http://127.0.0.1:9000"
	payload.API.RetryAttempts = 5
	payload.Stream.Path = "events"
	payload.Stream.MaxReconnectAttempts = 2
	payload.State.Dir = "~/aura-state"
	payload.Logging.Format = "JSON"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9000" || cfg.API.RetryAttempts != 5 {
		t.Fatalf("unexpected api: %+v", cfg.API)
	}
	if cfg.Stream.Path != "/events" {
		t.Fatalf("expected stream path to gain leading slash, got %q", cfg.Stream.Path)
	}
	if cfg.Stream.MaxReconnectAttempts != 2 {
		t.Fatalf("unexpected reconnect attempts: %d", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.State.Dir != filepath.Join(tempHome, "aura-state") {
		t.Fatalf("unexpected state dir: %q", cfg.State.Dir)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lower-cased log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"scheme", func(c *config.Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"retry cap", func(c *config.Config) { c.API.RetryMaxDelayMS = 10 }, "retry_max_delay_ms"},
		{"heartbeat", func(c *config.Config) { c.Stream.HeartbeatTimeoutSeconds = 1 }, "heartbeat_timeout_seconds"},
		{"reconnect cap", func(c *config.Config) { c.Stream.MaxReconnectDelayMS = 1 }, "max_reconnect_delay_ms"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"ntfy", func(c *config.Config) { c.Notifications.NtfyTopic = "topic-only" }, "ntfy_topic"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.Sample()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.API.RetryAttempts != 3 {
		t.Fatalf("unexpected sample retry attempts: %d", cfg.API.RetryAttempts)
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "[stream]") {
		t.Fatal("sample missing stream section")
	}
}
