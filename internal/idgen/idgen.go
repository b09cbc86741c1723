// Package idgen provides the injectable identity source the design notes
// require: pair and order IDs must come from an injected generator, never a
// package-level call, so tests can pin deterministic IDs.
package idgen

import "github.com/google/uuid"

// Source generates opaque, globally-unique identity strings.
type Source interface {
	NewID() string
}

// UUIDSource generates random UUIDv4 strings. It is the production Source.
type UUIDSource struct{}

// NewID returns a fresh random UUID.
func (UUIDSource) NewID() string {
	return uuid.New().String()
}

// Fixed is a test Source that returns a pre-set sequence of IDs, falling
// back to a random UUID once the sequence is exhausted.
type Fixed struct {
	IDs   []string
	index int
}

// NewID returns the next pre-set ID, or a generated fallback once the list
// is exhausted.
func (f *Fixed) NewID() string {
	if f.index < len(f.IDs) {
		id := f.IDs[f.index]
		f.index++
		return id
	}
	id := uuid.New().String()
	return id
}
