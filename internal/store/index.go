package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// deletedSuffix is appended to a blob's physical file name when its record is
// soft-deleted. A file carrying this suffix must never be served.
const deletedSuffix = ".deleted"

// Index is the metadata index: an ordered collection of Records supporting
// append, soft-delete by id, and filtered scans. The index is the single
// source of truth for whether a blob exists publicly; filesystem presence
// alone is not sufficient.
//
// Implementations must serialize mutations internally. Reads may race with a
// concurrent mutation and observe either state; records are otherwise
// immutable, so this is eventual consistency rather than a correctness
// hazard.
type Index interface {
	// LoadAll returns every record, deleted ones included, in insertion
	// order.
	LoadAll() ([]Record, error)

	// Append adds a record to the end of the index.
	Append(rec Record) error

	// SoftDelete marks the first live record with the given id as deleted
	// and renames its physical file with the reserved suffix. It returns
	// the record as it was before deletion, or ErrNotFound.
	SoftDelete(id string) (Record, error)

	// Query returns the live (non-deleted) records matching the predicate,
	// in insertion order. A nil predicate matches everything.
	Query(match func(Record) bool) ([]Record, error)
}

// SnapshotIndex persists the whole record collection as one JSON array,
// read fully at the start of every operation and rewritten wholesale on every
// mutation. A single mutex serializes load+modify+persist across concurrent
// handlers; without it, two racing appends would each start from the same
// snapshot and the last writer would silently discard the other's record.
type SnapshotIndex struct {
	path string

	mu sync.Mutex // serializes all mutations
}

// NewSnapshotIndex opens the snapshot at path, seeding an empty artifact if
// none exists so a fresh data directory starts from a valid snapshot rather
// than a missing file.
func NewSnapshotIndex(path string) (*SnapshotIndex, error) {
	idx := &SnapshotIndex{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := idx.persist(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat index snapshot: %w", err)
	}

	return idx, nil
}

func (idx *SnapshotIndex) load() ([]Record, error) {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return records, nil
}

func (idx *SnapshotIndex) persist(records []Record) error {
	if records == nil {
		records = []Record{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode index snapshot: %w", err)
	}

	// Readers are lock-free, so the snapshot must never be observable in a
	// half-written state. Stage the new contents next to the artifact and
	// rename into place; the rename is atomic within one volume.
	tmp, err := os.CreateTemp(filepath.Dir(idx.path), filepath.Base(idx.path)+".*")
	if err != nil {
		return fmt.Errorf("stage index snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod index snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close index snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace index snapshot: %w", err)
	}
	return nil
}

func (idx *SnapshotIndex) LoadAll() ([]Record, error) {
	return idx.load()
}

func (idx *SnapshotIndex) Append(rec Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	records, err := idx.load()
	if err != nil {
		return err
	}
	return idx.persist(append(records, rec))
}

func (idx *SnapshotIndex) SoftDelete(id string) (Record, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	records, err := idx.load()
	if err != nil {
		return Record{}, err
	}

	for i := range records {
		if records[i].ID != id || records[i].Deleted {
			continue
		}

		orig := records[i]
		records[i].Deleted = true
		if err := idx.persist(records); err != nil {
			return Record{}, err
		}

		// The record is already invisible to every read path. If the rename
		// fails the file stays on disk under its servable name, which is an
		// index/filesystem inconsistency; report it rather than failing the
		// whole delete after the index write has landed.
		if err := os.Rename(orig.Path, orig.Path+deletedSuffix); err != nil {
			slog.Error("Rename soft-deleted blob file", "path", orig.Path, "err", err)
		}
		return orig, nil
	}

	return Record{}, ErrNotFound
}

func (idx *SnapshotIndex) Query(match func(Record) bool) ([]Record, error) {
	records, err := idx.load()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
