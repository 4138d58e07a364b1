package workflow

import "slices"

// Announced is the set of one-time side effects already emitted for a
// session. The zero value is empty. It is a value type: First returns the
// updated set so reducers stay pure.
type Announced []string

// First reports whether key has not been announced yet and returns the set
// with key included.
func (a Announced) First(key string) (Announced, bool) {
	if slices.Contains(a, key) {
		return a, false
	}
	next := make(Announced, len(a), len(a)+1)
	copy(next, a)
	return append(next, key), true
}

// Has reports whether key was announced.
func (a Announced) Has(key string) bool {
	return slices.Contains(a, key)
}
