package workflow

import "slices"

// Ladder orders a workflow's phases. Failure phases sit outside the order.
type Ladder[P comparable] struct {
	phases   []P
	failures []P
}

// NewLadder returns a ladder over phases in progress order.
func NewLadder[P comparable](failures []P, phases ...P) Ladder[P] {
	return Ladder[P]{phases: slices.Clone(phases), failures: slices.Clone(failures)}
}

// Ordinal returns the position of p, or false for failure and unknown phases.
func (l Ladder[P]) Ordinal(p P) (int, bool) {
	idx := slices.Index(l.phases, p)
	return idx, idx >= 0
}

// IsFailure reports whether p is a terminal failure phase.
func (l Ladder[P]) IsFailure(p P) bool {
	return slices.Contains(l.failures, p)
}

// Admit reports whether a reported phase next should replace current.
//
// A failure is always admitted unless it repeats the current phase. Once
// current is a failure nothing else is admitted; leaving it takes an explicit
// retry. Otherwise next must be known and strictly further along.
func (l Ladder[P]) Admit(current, next P) bool {
	if next == current {
		return false
	}
	if l.IsFailure(next) {
		return true
	}
	if l.IsFailure(current) {
		return false
	}
	nextOrd, ok := l.Ordinal(next)
	if !ok {
		return false
	}
	currentOrd, ok := l.Ordinal(current)
	if !ok {
		return true
	}
	return nextOrd > currentOrd
}
