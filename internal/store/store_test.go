package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// memIndex is an in-memory Index for exercising the facade without
// filesystem-backed metadata. It records metadata only; physical rename on
// soft delete is the real implementations' concern.
type memIndex struct {
	mu      sync.Mutex
	records []Record
}

func (m *memIndex) LoadAll() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memIndex) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memIndex) SoftDelete(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id && !m.records[i].Deleted {
			orig := m.records[i]
			m.records[i].Deleted = true
			return orig, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *memIndex) Query(match func(Record) bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Deleted {
			continue
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dataDir := t.TempDir()
	idx, err := NewSnapshotIndex(filepath.Join(dataDir, "meta.json"))
	require.NoError(t, err, "NewSnapshotIndex error")
	return New(dataDir, idx), dataDir
}

func TestUploadRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	meta, err := s.Upload(strings.NewReader("abc"), "a.png", 3)
	require.NoError(t, err, "Upload error")
	require.NotEmpty(t, meta.ID, "public id")
	require.Equal(t, int64(3), meta.Size, "public size")
	require.Equal(t, "a.png", meta.Name, "public name")

	rec, err := s.FetchByID(meta.ID)
	require.NoError(t, err, "FetchByID error")

	data, err := os.ReadFile(rec.Path)
	require.NoError(t, err, "reading blob")
	require.Equal(t, "abc", string(data), "round-tripped content")
}

func TestUploadRejectionLeavesNoState(t *testing.T) {
	t.Parallel()

	s, dataDir := newTestStore(t)

	_, err := s.Upload(strings.NewReader("abc"), "a.txt", 3)
	require.ErrorIs(t, err, ErrInvalidType, "Upload error")

	metas, err := s.List("")
	require.NoError(t, err, "List error")
	require.Empty(t, metas, "no record after rejection")

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err, "reading data dir")
	require.Len(t, entries, 1, "only the index snapshot may exist")
	require.Equal(t, "meta.json", entries[0].Name(), "remaining file")
}

func TestUploadIDsUniqueAcrossDeletes(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := range 10 {
		meta, err := s.Upload(strings.NewReader("x"), fmt.Sprintf("f%d.png", i), 1)
		require.NoError(t, err, "Upload error")
		require.False(t, seen[meta.ID], "duplicate id %q", meta.ID)
		seen[meta.ID] = true

		if i%2 == 0 {
			_, err := s.Remove(meta.ID)
			require.NoError(t, err, "Remove error")
		}
	}
}

func TestRemoveIsTerminal(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	meta, err := s.Upload(strings.NewReader("abc"), "a.png", 3)
	require.NoError(t, err, "Upload error")

	removed, err := s.Remove(meta.ID)
	require.NoError(t, err, "Remove error")
	require.Equal(t, meta.ID, removed, "removed id")

	_, err = s.FetchByID(meta.ID)
	require.ErrorIs(t, err, ErrNotFound, "FetchByID after remove")

	metas, err := s.List("")
	require.NoError(t, err, "List error")
	require.Empty(t, metas, "removed blob must not be listed")

	_, err = s.Remove(meta.ID)
	require.ErrorIs(t, err, ErrNotFound, "second Remove error")
}

func TestFetchByIDMissingFile(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	meta, err := s.Upload(strings.NewReader("abc"), "a.png", 3)
	require.NoError(t, err, "Upload error")

	rec, err := s.FetchByID(meta.ID)
	require.NoError(t, err, "FetchByID error")

	// A record whose file vanished is not found, not an internal error.
	require.NoError(t, os.Remove(rec.Path), "removing blob file")
	_, err = s.FetchByID(meta.ID)
	require.ErrorIs(t, err, ErrNotFound, "FetchByID with missing file")
}

func TestListNameFilter(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	for _, name := range []string{"cat.png", "dog.jpg", "cathedral.png"} {
		_, err := s.Upload(strings.NewReader("x"), name, 1)
		require.NoError(t, err, "Upload error")
	}

	metas, err := s.List("cat")
	require.NoError(t, err, "List error")
	require.Len(t, metas, 2, "filtered count")
	require.Equal(t, "cat.png", metas[0].Name, "first match in insertion order")
	require.Equal(t, "cathedral.png", metas[1].Name, "second match in insertion order")

	all, err := s.List("")
	require.NoError(t, err, "List error")
	require.Len(t, all, 3, "unfiltered count")
}

func TestFacadeWithInjectedIndex(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	s := New(dataDir, &memIndex{})

	meta, err := s.Upload(strings.NewReader("abc"), "a.png", 3)
	require.NoError(t, err, "Upload error")

	metas, err := s.List("")
	require.NoError(t, err, "List error")
	require.Len(t, metas, 1, "listed count")
	require.Equal(t, meta.ID, metas[0].ID, "listed id")

	_, err = s.Remove(meta.ID)
	require.NoError(t, err, "Remove error")

	metas, err = s.List("")
	require.NoError(t, err, "List error")
	require.Empty(t, metas, "removed blob must not be listed")
}

// TestConcurrentUploadsThenDelete exercises the serialized-mutation
// requirement: N concurrent uploads racing on the snapshot must all survive,
// and one delete afterwards leaves exactly N-1 live records.
func TestConcurrentUploadsThenDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	const n = 20

	var (
		mu  sync.Mutex
		ids []string
	)

	var eg errgroup.Group
	for i := range n {
		eg.Go(func() error {
			meta, err := s.Upload(strings.NewReader(strings.Repeat("x", i+1)), fmt.Sprintf("img-%d.png", i), int64(i+1))
			if err != nil {
				return err
			}
			mu.Lock()
			ids = append(ids, meta.ID)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait(), "concurrent uploads")

	_, err := s.Remove(ids[0])
	require.NoError(t, err, "Remove error")

	metas, err := s.List("")
	require.NoError(t, err, "List error")
	require.Len(t, metas, n-1, "live record count after delete")

	remaining := make(map[string]bool, len(metas))
	for _, m := range metas {
		remaining[m.ID] = true
	}
	require.False(t, remaining[ids[0]], "deleted id must not be listed")
	for _, id := range ids[1:] {
		require.Truef(t, remaining[id], "expected id %q in listing", id)
	}
}
