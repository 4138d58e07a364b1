// Package logging assembles structured slog loggers and formatting helpers used
// across aura.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so HTTP and workflow code can
// tag log lines with request IDs, resource identifiers, and workflow names.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
