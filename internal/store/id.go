package store

import "github.com/google/uuid"

// newID returns an opaque, collision-resistant identifier. The output is safe
// to embed directly in a filename: hex digits and dashes only, no path
// separators, no leading dot. IDs are random, so uniqueness holds across
// process restarts without any persisted counter.
func newID() string {
	return uuid.NewString()
}
