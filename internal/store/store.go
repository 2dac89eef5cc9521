package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// PublicMeta is the client-visible view of a stored blob. Physical paths and
// stored file names never leave the package through this type.
type PublicMeta struct {
	ID   string `json:"id"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// Store composes the blob writer and the metadata index into the user-facing
// upload, fetch, remove, and list operations. The index is injected so tests
// can swap in an in-memory implementation without touching the filesystem.
type Store struct {
	writer *BlobWriter
	index  Index
}

// New returns a Store writing blobs under dataDir and recording metadata in
// index.
func New(dataDir string, index Index) *Store {
	return &Store{writer: NewBlobWriter(dataDir), index: index}
}

// Upload persists the stream and appends a metadata record for it. The byte
// write completes before the record is appended, so a failure in between
// leaves at worst an unindexed orphan file, never a record pointing at
// nothing.
func (s *Store) Upload(r io.Reader, originalName string, declaredSize int64) (PublicMeta, error) {
	res, err := s.writer.Ingest(r, originalName, declaredSize)
	if err != nil {
		return PublicMeta{}, err
	}

	rec := Record{
		ID:           newID(),
		Name:         strings.TrimSuffix(res.StoredName, filepath.Ext(res.StoredName)),
		Path:         res.Path,
		Size:         res.Size,
		OriginalName: originalName,
	}

	if err := s.index.Append(rec); err != nil {
		// The blob is on disk but unreferenced. This is the one real
		// inconsistency window in the design; flag the orphan loudly so
		// cleanup tooling has something to go on.
		slog.Error("Index append failed after blob write, orphan left on disk", "path", res.Path, "err", err)
		return PublicMeta{}, fmt.Errorf("append metadata record: %w", err)
	}

	return PublicMeta{ID: rec.ID, Size: rec.Size, Name: rec.OriginalName}, nil
}

// FetchByID resolves an id to the record of a live blob, verifying that the
// physical file is still present. A clean record whose file has gone missing
// is reported as ErrNotFound rather than as an internal error.
func (s *Store) FetchByID(id string) (Record, error) {
	matches, err := s.index.Query(func(rec Record) bool { return rec.ID == id })
	if err != nil {
		return Record{}, err
	}
	if len(matches) == 0 {
		return Record{}, ErrNotFound
	}

	rec := matches[0]
	if _, err := os.Stat(rec.Path); err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("stat blob file: %w", err)
	}
	return rec, nil
}

// Remove soft-deletes the record with the given id and returns the id.
// Removing an already-deleted or unknown id yields ErrNotFound.
func (s *Store) Remove(id string) (string, error) {
	rec, err := s.index.SoftDelete(id)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// List returns the public metadata of all live blobs whose original name
// contains nameFilter, in insertion order. An empty filter matches every
// blob.
func (s *Store) List(nameFilter string) ([]PublicMeta, error) {
	records, err := s.index.Query(func(rec Record) bool {
		return nameFilter == "" || strings.Contains(rec.OriginalName, nameFilter)
	})
	if err != nil {
		return nil, err
	}

	out := make([]PublicMeta, 0, len(records))
	for _, rec := range records {
		if rec.Deleted {
			// Query already excludes deleted records; never re-include a
			// stale row that raced in from a concurrent mutation.
			continue
		}
		out = append(out, PublicMeta{ID: rec.ID, Size: rec.Size, Name: rec.OriginalName})
	}
	return out, nil
}
