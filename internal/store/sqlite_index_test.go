package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()

	dir := t.TempDir()
	idx, err := NewSQLiteIndex(filepath.Join(dir, "metadata.sqlite"))
	require.NoError(t, err, "NewSQLiteIndex error")
	t.Cleanup(func() { _ = idx.Close() })
	return idx, dir
}

func TestSQLiteAppendAndLoadAll(t *testing.T) {
	t.Parallel()

	idx, dir := newTestSQLiteIndex(t)

	first := Record{ID: "id-1", Name: "stem-1", Path: writeBlobFile(t, dir, "stem-1.png"), Size: 7, OriginalName: "cat.png"}
	second := Record{ID: "id-2", Name: "stem-2", Path: writeBlobFile(t, dir, "stem-2.jpg"), Size: 7, OriginalName: "dog.jpg"}

	require.NoError(t, idx.Append(first), "appending first record")
	require.NoError(t, idx.Append(second), "appending second record")

	records, err := idx.LoadAll()
	require.NoError(t, err, "LoadAll error")
	require.Equal(t, []Record{first, second}, records, "records in insertion order")
}

func TestSQLiteSoftDelete(t *testing.T) {
	t.Parallel()

	idx, dir := newTestSQLiteIndex(t)

	path := writeBlobFile(t, dir, "stem-1.png")
	rec := Record{ID: "id-1", Name: "stem-1", Path: path, Size: 7, OriginalName: "cat.png"}
	require.NoError(t, idx.Append(rec), "appending record")

	deleted, err := idx.SoftDelete("id-1")
	require.NoError(t, err, "SoftDelete error")
	require.Equal(t, "id-1", deleted.ID, "deleted record id")

	_, err = os.Stat(path + deletedSuffix)
	require.NoError(t, err, "renamed file must exist")

	live, err := idx.Query(nil)
	require.NoError(t, err, "Query error")
	require.Empty(t, live, "deleted records must not be returned")

	_, err = idx.SoftDelete("id-1")
	require.ErrorIs(t, err, ErrNotFound, "second SoftDelete error")
}

func TestSQLiteConcurrentDeletesHaveOneWinner(t *testing.T) {
	t.Parallel()

	idx, dir := newTestSQLiteIndex(t)

	path := writeBlobFile(t, dir, "stem-1.png")
	rec := Record{ID: "id-1", Name: "stem-1", Path: path, Size: 7, OriginalName: "cat.png"}
	require.NoError(t, idx.Append(rec), "appending record")

	const deleters = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	errs := make(chan error, deleters)
	for range deleters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.SoftDelete("id-1")
			if err == nil {
				successes.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Soft delete is terminal, so of all racing deletes exactly one may
	// report success; every loser must see not found.
	require.Equal(t, int64(1), successes.Load(), "winner count")
	for err := range errs {
		require.ErrorIs(t, err, ErrNotFound, "losing delete error")
	}

	live, err := idx.Query(nil)
	require.NoError(t, err, "Query error")
	require.Empty(t, live, "deleted records must not be returned")
}

func TestSQLiteQueryFilterPreservesOrder(t *testing.T) {
	t.Parallel()

	idx, dir := newTestSQLiteIndex(t)

	names := []string{"cat.png", "dog.jpg", "cathedral.png"}
	for _, name := range names {
		path := writeBlobFile(t, dir, name)
		require.NoError(t, idx.Append(Record{ID: name, Name: name, Path: path, Size: 1, OriginalName: name}), "appending record")
	}

	matches, err := idx.Query(func(rec Record) bool {
		return strings.Contains(rec.OriginalName, "cat")
	})
	require.NoError(t, err, "Query error")
	require.Len(t, matches, 2, "match count")
	require.Equal(t, "cat.png", matches[0].OriginalName, "first match")
	require.Equal(t, "cathedral.png", matches[1].OriginalName, "second match")
}
