// Package notifications delivers workflow milestones and failures to the user.
//
// Every workflow publishes through the single Service interface so a failure
// discovered from a push event reads exactly like one returned by a request.
// The console service prints coloured lines for the CLI; the ntfy service
// pushes to the topic configured in config.toml. NewService fans out to both
// and degrades to console-only when no topic is set.
package notifications
