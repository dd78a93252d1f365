package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
)

func newDiskDirectory(t *testing.T) *Directory {
	t.Helper()
	d := NewDirectory(filepath.Join(t.TempDir(), "Orders"), bleve.NewIndexMapping(), nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newMemDirectory(t *testing.T) *Directory {
	t.Helper()
	d := NewDirectory("", bleve.NewIndexMapping(), nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func commitDocs(t *testing.T, d *Directory, ids ...string) {
	t.Helper()
	w, err := d.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	for _, id := range ids {
		require.NoError(t, w.Add(id, map[string]any{"Name": id}))
	}
	require.NoError(t, w.Commit())
}

func count(t *testing.T, d *Directory) uint64 {
	t.Helper()
	s, err := d.OpenSearcher()
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	return n
}

func TestDirectory_CreatesLazily(t *testing.T) {
	// Given: a directory that has not been used
	d := newDiskDirectory(t)
	_, err := os.Stat(d.Path())
	require.True(t, os.IsNotExist(err))

	// When: the index is first requested
	idx1, err := d.Index()
	require.NoError(t, err)
	idx2, err := d.Index()
	require.NoError(t, err)

	// Then: it is created once and shared
	assert.Same(t, idx1, idx2)
	assert.FileExists(t, filepath.Join(d.Path(), "index_meta.json"))
}

func TestDirectory_ReopensCommittedDocuments(t *testing.T) {
	// Given: documents committed to a disk index
	path := filepath.Join(t.TempDir(), "Orders")
	d := NewDirectory(path, bleve.NewIndexMapping(), nil)
	commitDocs(t, d, "a", "b")
	require.NoError(t, d.Close())

	// When: a new handle opens the same path
	reopened := NewDirectory(path, bleve.NewIndexMapping(), nil)
	defer reopened.Close()

	// Then: the documents are there
	assert.Equal(t, uint64(2), count(t, reopened))
}

func TestDirectory_RejectsCorruptIndex(t *testing.T) {
	// Given: an index directory with an empty meta file
	path := filepath.Join(t.TempDir(), "Orders")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0644))
	d := NewDirectory(path, bleve.NewIndexMapping(), nil)
	defer d.Close()

	// When: opening
	_, err := d.Index()

	// Then: corruption is reported, not silently repaired
	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodeCorruptIndex, mirrorerrors.GetCode(err))
	assert.True(t, mirrorerrors.IsFatal(err))
}

func TestDirectory_ResetRecoversCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Orders")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{"), 0644))
	d := NewDirectory(path, bleve.NewIndexMapping(), nil)
	defer d.Close()

	require.NoError(t, d.Reset())

	assert.Equal(t, uint64(0), count(t, d))
}

func TestDirectory_ResetDiscardsDocuments(t *testing.T) {
	for name, d := range map[string]*Directory{
		"disk":   newDiskDirectory(t),
		"memory": newMemDirectory(t),
	} {
		t.Run(name, func(t *testing.T) {
			// Given: committed documents
			commitDocs(t, d, "a", "b", "c")
			require.Equal(t, uint64(3), count(t, d))

			// When: resetting
			require.NoError(t, d.Reset())

			// Then: the index is empty and still usable
			assert.Equal(t, uint64(0), count(t, d))
			commitDocs(t, d, "d")
			assert.Equal(t, uint64(1), count(t, d))
		})
	}
}

func TestDirectory_ResetFailsWhileWriterOpen(t *testing.T) {
	d := newDiskDirectory(t)
	w, err := d.OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	err = d.Reset()

	assert.True(t, mirrorerrors.IsLockContention(err))
}

func TestWriter_CommitMakesDocumentsVisible(t *testing.T) {
	// Given: a writer with staged documents
	d := newMemDirectory(t)
	w, err := d.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add("a", map[string]any{"Name": "a"}))
	require.NoError(t, w.Add("b", map[string]any{"Name": "b"}))
	assert.Equal(t, 2, w.Staged())

	// Then: nothing is visible before commit
	assert.Equal(t, uint64(0), count(t, d))

	// When: committing
	require.NoError(t, w.Commit())

	// Then: both are visible and the batch is empty
	assert.Equal(t, uint64(2), count(t, d))
	assert.Equal(t, 0, w.Staged())
}

func TestWriter_UpdateReplacesDocument(t *testing.T) {
	d := newMemDirectory(t)
	commitDocs(t, d, "a")

	w, err := d.OpenWriter()
	require.NoError(t, err)
	require.NoError(t, w.Update("a", map[string]any{"Name": "changed"}))
	require.NoError(t, w.Commit())
	require.NoError(t, w.Close())

	s, err := d.OpenSearcher()
	require.NoError(t, err)
	defer s.Close()
	res, err := s.Search(context.Background(), Request{Fields: []string{"Name"}, Size: AllHits})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "changed", res.Hits[0].Fields["Name"])
}

func TestWriter_CloseWithoutCommitDiscards(t *testing.T) {
	d := newMemDirectory(t)
	w, err := d.OpenWriter()
	require.NoError(t, err)
	require.NoError(t, w.Add("a", map[string]any{"Name": "a"}))

	require.NoError(t, w.Close())

	assert.Equal(t, uint64(0), count(t, d))
	assert.Error(t, w.Add("b", map[string]any{}))
	assert.Error(t, w.Commit())
}

func TestWriter_SecondWriterFailsFast(t *testing.T) {
	for name, d := range map[string]*Directory{
		"disk":   newDiskDirectory(t),
		"memory": newMemDirectory(t),
	} {
		t.Run(name, func(t *testing.T) {
			// Given: an open writer
			first, err := d.OpenWriter()
			require.NoError(t, err)

			// When: a second writer is requested
			_, err = d.OpenWriter()

			// Then: lock contention, immediately
			require.Error(t, err)
			assert.True(t, mirrorerrors.IsLockContention(err))
			assert.True(t, mirrorerrors.IsRetryable(err))

			// And: the lock is free again once the first closes
			require.NoError(t, first.Close())
			second, err := d.OpenWriter()
			require.NoError(t, err)
			require.NoError(t, second.Close())
		})
	}
}

func TestWriter_LockFileSitsBesideIndex(t *testing.T) {
	d := newDiskDirectory(t)
	w, err := d.OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, d.Path()+".lock", d.LockPath())
	assert.FileExists(t, d.LockPath())
}

func TestWriter_CommitFailureLeavesLastCommittedState(t *testing.T) {
	// Given: one committed document and a writer with more staged
	d := newDiskDirectory(t)
	commitDocs(t, d, "a")
	w, err := d.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add("b", map[string]any{"Name": "b"}))

	// When: the index goes away before commit
	idx, err := d.Index()
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	err = w.Commit()

	// Then: commit failure, and a fresh open sees only the first document
	require.Error(t, err)
	assert.True(t, mirrorerrors.IsCommitFailure(err))
	require.NoError(t, w.Close())
	_ = d.Close()

	reopened := NewDirectory(d.Path(), bleve.NewIndexMapping(), nil)
	defer reopened.Close()
	assert.Equal(t, uint64(1), count(t, reopened))
}

func TestSearcher_SortsAndSizes(t *testing.T) {
	d := newMemDirectory(t)
	commitDocs(t, d, "c", "a", "b")

	s, err := d.OpenSearcher()
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Search(context.Background(), Request{
		Size: AllHits,
		Sort: search.SortOrder{&search.SortDocID{}},
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	assert.Equal(t, "a", res.Hits[0].ID)
	assert.Equal(t, "c", res.Hits[2].ID)

	res, err = s.Search(context.Background(), Request{Size: 1})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, uint64(3), res.Total)
}

func TestSearcher_UseAfterClose(t *testing.T) {
	d := newMemDirectory(t)
	s, err := d.OpenSearcher()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Count()
	assert.Error(t, err)
	_, err = s.Search(context.Background(), Request{})
	assert.Error(t, err)
}

func TestDirectory_ClosedRejectsUse(t *testing.T) {
	d := newMemDirectory(t)
	require.NoError(t, d.Close())

	_, err := d.OpenSearcher()
	assert.Error(t, err)
}
