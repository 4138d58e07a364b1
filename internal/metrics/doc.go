// Package metrics owns the prometheus collectors exported by aura.
//
// Collectors live on a private Registry rather than the global default so tests
// and multiple clients in one process never collide. All recorder methods are
// nil-safe: components receive a *Registry and may be constructed without one.
package metrics
