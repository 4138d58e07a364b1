// Package watch runs the long-lived `aura watch` loop.
//
// A watcher holds an exclusive lock under the state directory, rejoins the
// persisted creation and orchestrator sessions, follows any posts and
// influencer feeds named on the command line, and prints one line per visible
// transition. When a metrics address is configured it also serves Prometheus
// metrics. It exits on SIGINT/SIGTERM, on context cancellation, or, with
// ExitWhenSettled, once nothing it follows can progress without user input.
package watch
