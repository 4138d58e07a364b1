package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains backend endpoint and HTTP client resilience settings.
type API struct {
	BaseURL         string `toml:"base_url"`
	Token           string `toml:"token"`
	TimeoutMS       int    `toml:"timeout_ms"`
	RetryAttempts   int    `toml:"retry_attempts"`
	RetryDelayMS    int    `toml:"retry_delay_ms"`
	RetryMaxDelayMS int    `toml:"retry_max_delay_ms"`
	CacheEnabled    bool   `toml:"cache_enabled"`
	CacheTTLMS      int    `toml:"cache_ttl_ms"`
	CacheSize       int    `toml:"cache_size"`
	DebugRequests   bool   `toml:"debug_requests"`
}

// Stream contains event stream connection tuning.
type Stream struct {
	Path                     string `toml:"path"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int    `toml:"heartbeat_timeout_seconds"`
	InitialReconnectDelayMS  int    `toml:"initial_reconnect_delay_ms"`
	MaxReconnectDelayMS      int    `toml:"max_reconnect_delay_ms"`
	MaxReconnectAttempts     int    `toml:"max_reconnect_attempts"`
}

// State contains the local persistence location.
type State struct {
	Dir string `toml:"dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	PostReady      bool   `toml:"post_ready"`
	Errors         bool   `toml:"errors"`
}

// Metrics contains configuration for the watcher's prometheus endpoint.
type Metrics struct {
	ListenAddr string `toml:"listen_addr"`
}

// Config encapsulates all configuration values for aura.
//
// Configuration sections by subsystem:
//   - API: backend URL, credential override, timeouts, retries, GET cache
//   - Stream: event stream path, heartbeat and reconnect policy
//   - State: directory holding the credential/session database and lock
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - Metrics: optional prometheus listener for `aura watch`
type Config struct {
	API           API           `toml:"api"`
	Stream        Stream        `toml:"stream"`
	State         State         `toml:"state"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.State.Dir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", c.State.Dir, err)
	}
	return nil
}

// StatePath returns the sqlite database path inside the state directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.State.Dir, "state.db")
}

// LockPath returns the watcher lock file path inside the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.State.Dir, "watch.lock")
}

// RequestTimeout returns the per-attempt HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutMS) * time.Millisecond
}

// RetryDelay returns the base retry delay.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.API.RetryDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the cap applied to retry backoff.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.API.RetryMaxDelayMS) * time.Millisecond
}

// CacheTTL returns the default GET cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.API.CacheTTLMS) * time.Millisecond
}

// HeartbeatInterval returns how often the stream manager checks liveness.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Stream.HeartbeatIntervalSeconds) * time.Second
}

// HeartbeatTimeout returns the silence threshold after which a stream is stale.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Stream.HeartbeatTimeoutSeconds) * time.Second
}

// InitialReconnectDelay returns the first reconnect backoff step.
func (c *Config) InitialReconnectDelay() time.Duration {
	return time.Duration(c.Stream.InitialReconnectDelayMS) * time.Millisecond
}

// MaxReconnectDelay returns the reconnect backoff cap.
func (c *Config) MaxReconnectDelay() time.Duration {
	return time.Duration(c.Stream.MaxReconnectDelayMS) * time.Millisecond
}

// NotifyTimeout returns the ntfy request timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}
