// Package studio assembles the long-lived services one aura process shares:
// the state database, credentials, the API client, the event stream manager,
// and the workflow state machines built on top of them.
//
// Both the CLI and the watcher build a Runtime from configuration and close it
// on exit. Cross-cutting reactions live here: a logout tears down the event
// stream, and a stream that gives up reconnecting raises a notice.
package studio
