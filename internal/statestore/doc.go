// Package statestore persists small pieces of client state (the bearer
// credential, active workflow session identifiers, watched targets) in a local
// SQLite database.
//
// The store is a plain key/value table with WAL journaling and busy retries so
// the CLI and a running `aura watch` can share it. Memory offers the same
// contract in-process for tests and for callers that opt out of persistence.
package statestore
