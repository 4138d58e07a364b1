package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envAPIURL = "AURA_API_URL"
	envToken  = "AURA_TOKEN"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	c.normalizeStream()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	return nil
}

func (c *Config) normalizeAPI() {
	if value, ok := os.LookupEnv(envAPIURL); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = value
	}
	if value, ok := os.LookupEnv(envToken); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.TimeoutMS <= 0 {
		c.API.TimeoutMS = defaultTimeoutMS
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = defaultRetryAttempts
	}
	if c.API.RetryDelayMS < 0 {
		c.API.RetryDelayMS = defaultRetryDelayMS
	}
	if c.API.RetryMaxDelayMS <= 0 {
		c.API.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
	if c.API.CacheTTLMS <= 0 {
		c.API.CacheTTLMS = defaultCacheTTLMS
	}
	if c.API.CacheSize <= 0 {
		c.API.CacheSize = defaultCacheSize
	}
}

func (c *Config) normalizeStream() {
	path := strings.TrimSpace(c.Stream.Path)
	if path == "" {
		path = defaultStreamPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	c.Stream.Path = path
	if c.Stream.HeartbeatIntervalSeconds <= 0 {
		c.Stream.HeartbeatIntervalSeconds = defaultHeartbeatIntervalSeconds
	}
	if c.Stream.HeartbeatTimeoutSeconds <= 0 {
		c.Stream.HeartbeatTimeoutSeconds = defaultHeartbeatTimeoutSeconds
	}
	if c.Stream.InitialReconnectDelayMS <= 0 {
		c.Stream.InitialReconnectDelayMS = defaultInitialReconnectDelayMS
	}
	if c.Stream.MaxReconnectDelayMS <= 0 {
		c.Stream.MaxReconnectDelayMS = defaultMaxReconnectDelayMS
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		c.Stream.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
}

func (c *Config) normalizeState() error {
	if strings.TrimSpace(c.State.Dir) == "" {
		c.State.Dir = defaultStateDir
	}
	var err error
	if c.State.Dir, err = expandPath(c.State.Dir); err != nil {
		return fmt.Errorf("state.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
