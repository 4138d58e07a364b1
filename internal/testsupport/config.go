package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique temp state directory per
// test. Retries are disabled and the cache is off unless an option says
// otherwise, so tests see one request per call.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.API.Token = ""
	cfgVal.API.RetryAttempts = 1
	cfgVal.API.RetryDelayMS = 1
	cfgVal.API.CacheEnabled = false
	cfgVal.State.Dir = filepath.Join(base, "state")
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBaseURL points the config at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithRetry enables retries with the given attempt count and base delay.
func WithRetry(attempts, delayMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.RetryAttempts = attempts
		b.cfg.API.RetryDelayMS = delayMS
	}
}

// WithCache turns the GET cache on.
func WithCache(ttlMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.CacheEnabled = true
		b.cfg.API.CacheTTLMS = ttlMS
	}
}

// WithNtfyTopic sets the ntfy topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithReconnectAttempts caps event stream reconnects.
func WithReconnectAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.MaxReconnectAttempts = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.State.Dir)
}
