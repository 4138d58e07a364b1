// Package workflow holds the pieces shared by the creation, orchestrator, and
// post state machines.
//
// Each machine mirrors a server-owned session and is driven by two inputs:
// request/response results and push events for the same resource. Both go
// through one phase mapping, and a Ladder decides whether a reported phase may
// replace the current one: progress never moves backwards, duplicates are
// ignored, and a failure phase halts automatic progression until the user
// retries. Announced tracks one-time side effects so repeated frames do not
// repeat notices.
package workflow
