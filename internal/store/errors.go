package store

import "errors"

var (
	// ErrInvalidType rejects uploads whose declared extension is not in the
	// whitelist. Detected before any bytes are written.
	ErrInvalidType = errors.New("file is of the wrong type")

	// ErrTooLarge rejects uploads that exceed the size ceiling.
	ErrTooLarge = errors.New("file exceeds the maximum upload size")

	// ErrNotFound means no live (non-deleted) record matches the given id.
	ErrNotFound = errors.New("no such upload")

	// ErrCorruptIndex means the persisted index could not be parsed. Callers
	// must treat this as fatal for the request rather than as an empty index,
	// which would silently hide every existing blob.
	ErrCorruptIndex = errors.New("metadata index is corrupt")
)
