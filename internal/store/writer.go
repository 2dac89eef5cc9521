package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// MaxBlobSize is the upload size ceiling in bytes.
const MaxBlobSize = 10_000_000

// allowedExtensions is the fixed whitelist of accepted upload types. The
// match is case-sensitive on the client-declared extension.
var allowedExtensions = []string{".png", ".jpg"}

// BlobWriter validates inbound streams against type and size policy and
// persists them under generated names in a fixed storage directory. Client
// filenames contribute only their extension to the stored name; no other
// client-supplied fragment ever reaches a filesystem path.
type BlobWriter struct {
	dataDir string
	maxSize int64
}

// NewBlobWriter returns a BlobWriter rooted at dataDir.
func NewBlobWriter(dataDir string) *BlobWriter {
	return &BlobWriter{dataDir: dataDir, maxSize: MaxBlobSize}
}

// WriteResult describes where an ingested blob landed on disk.
type WriteResult struct {
	// Path is the physical location of the blob on the storage volume.
	Path string
	// StoredName is the generated file name, id token plus original extension.
	StoredName string
	// Size is the byte count actually written.
	Size int64
}

// Ingest writes the stream to the storage directory under a freshly generated
// name. Policy checks run before any bytes hit the disk, and the size ceiling
// is also enforced incrementally during the copy so an oversized stream is
// aborted rather than written out in full. On any failure after the file has
// been created, the partial file is removed; nothing else references it yet.
//
// declaredSize is advisory: a mismatch against the actual byte count is
// logged, not treated as an error.
func (bw *BlobWriter) Ingest(r io.Reader, originalName string, declaredSize int64) (WriteResult, error) {
	ext := filepath.Ext(originalName)
	if !slices.Contains(allowedExtensions, ext) {
		return WriteResult{}, ErrInvalidType
	}
	if declaredSize > bw.maxSize {
		return WriteResult{}, ErrTooLarge
	}

	storedName := newID() + ext
	path := filepath.Join(bw.dataDir, storedName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return WriteResult{}, fmt.Errorf("create blob file: %w", err)
	}

	// Copy at most one byte past the ceiling; landing there means the stream
	// is oversized and the write is abandoned.
	written, err := io.Copy(f, io.LimitReader(r, bw.maxSize+1))
	if err == nil && written > bw.maxSize {
		err = ErrTooLarge
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close blob file: %w", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Error("Remove partial blob file", "path", path, "err", rmErr)
		}
		if errors.Is(err, ErrTooLarge) {
			return WriteResult{}, ErrTooLarge
		}
		return WriteResult{}, fmt.Errorf("write blob file: %w", err)
	}

	if declaredSize >= 0 && written != declaredSize {
		slog.Debug("Blob size mismatch", "name", originalName, "declared", declaredSize, "actual", written)
	}

	return WriteResult{Path: path, StoredName: storedName, Size: written}, nil
}
