// Package config loads, normalizes, and validates aura configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// AURA_API_URL and AURA_TOKEN. The Config type centralizes every knob the CLI
// and watcher need: backend endpoint, HTTP resilience settings, event stream
// tuning, state directory, logging, and notifications.
//
// Always obtain settings through this package so downstream code receives
// sanitized URLs, canonical log formats, and clear validation errors.
package config
