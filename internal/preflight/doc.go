// Package preflight provides the readiness checks behind `aura doctor`.
//
// Each check returns a Result rather than an error so the CLI can print every
// outcome in one table: configuration validity, state directory access,
// backend reachability, and the stored credential.
package preflight
