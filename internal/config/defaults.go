package config

const (
	defaultBaseURL                  = "http://localhost:8000"
	defaultTimeoutMS                = 30000
	defaultRetryAttempts            = 3
	defaultRetryDelayMS             = 1000
	defaultRetryMaxDelayMS          = 30000
	defaultCacheEnabled             = true
	defaultCacheTTLMS               = 300000
	defaultCacheSize                = 256
	defaultStreamPath               = "/stream"
	defaultHeartbeatIntervalSeconds = 30
	defaultHeartbeatTimeoutSeconds  = 45
	defaultInitialReconnectDelayMS  = 1000
	defaultMaxReconnectDelayMS      = 30000
	defaultMaxReconnectAttempts     = 10
	defaultStateDir                 = "~/.local/share/aura"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultNotifyRequestTimeout     = 10
	defaultConfigPath               = "~/.config/aura/config.toml"
	projectConfigName               = "aura.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:         defaultBaseURL,
			TimeoutMS:       defaultTimeoutMS,
			RetryAttempts:   defaultRetryAttempts,
			RetryDelayMS:    defaultRetryDelayMS,
			RetryMaxDelayMS: defaultRetryMaxDelayMS,
			CacheEnabled:    defaultCacheEnabled,
			CacheTTLMS:      defaultCacheTTLMS,
			CacheSize:       defaultCacheSize,
		},
		Stream: Stream{
			Path:                     defaultStreamPath,
			HeartbeatIntervalSeconds: defaultHeartbeatIntervalSeconds,
			HeartbeatTimeoutSeconds:  defaultHeartbeatTimeoutSeconds,
			InitialReconnectDelayMS:  defaultInitialReconnectDelayMS,
			MaxReconnectDelayMS:      defaultMaxReconnectDelayMS,
			MaxReconnectAttempts:     defaultMaxReconnectAttempts,
		},
		State: State{
			Dir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			PostReady:      true,
			Errors:         true,
		},
	}
}
