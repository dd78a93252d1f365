package store

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
)

// Writer stages document mutations and commits them as one atomic batch.
// It holds the directory's writer lock from open until Close.
type Writer struct {
	dir    *Directory
	index  bleve.Index
	batch  *bleve.Batch
	lock   writeLock
	closed bool
}

// OpenWriter acquires the writer lock without waiting. A held lock fails
// immediately with a lock contention error.
func (d *Directory) OpenWriter() (*Writer, error) {
	lock := d.newLock()
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, mirrorerrors.Wrap(mirrorerrors.ErrCodeInternal, err).WithDetail("path", d.name())
	}
	if !acquired {
		return nil, mirrorerrors.LockContentionError(d.name())
	}

	idx, err := d.Index()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &Writer{
		dir:   d,
		index: idx,
		batch: idx.NewBatch(),
		lock:  lock,
	}, nil
}

// Add stages a new document.
func (w *Writer) Add(id string, doc map[string]any) error {
	return w.stage(id, doc)
}

// Update stages a replacement for the document with the given id.
func (w *Writer) Update(id string, doc map[string]any) error {
	return w.stage(id, doc)
}

func (w *Writer) stage(id string, doc map[string]any) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if err := w.batch.Index(id, doc); err != nil {
		return mirrorerrors.InternalError(fmt.Sprintf("failed to stage document %s", id), err)
	}
	return nil
}

// Staged returns the number of pending mutations.
func (w *Writer) Staged() int {
	if w.closed {
		return 0
	}
	return w.batch.Size()
}

// Commit applies every staged mutation at once. On failure nothing from the
// batch becomes visible and the staged mutations are discarded.
func (w *Writer) Commit() error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if w.batch.Size() == 0 {
		return nil
	}
	defer w.batch.Reset()
	if err := w.index.Batch(w.batch); err != nil {
		return mirrorerrors.CommitFailure(w.dir.name(), err)
	}
	return nil
}

// Close discards uncommitted mutations and releases the lock.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.batch.Reset()
	return w.lock.Unlock()
}
