// Package store manages the on-disk bleve index behind one entity: lazy
// open-or-create, integrity checks, a cross-process writer lock, and
// per-operation writer and searcher handles.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
)

// Directory is the index of one entity. It is opened lazily and shared by
// every writer and searcher of the entity within the process.
type Directory struct {
	mu      sync.Mutex
	path    string
	mapping mapping.IndexMapping
	index   bleve.Index
	closed  bool

	// memLock stands in for the file lock when the index is in memory.
	memLock sync.Mutex

	logger *slog.Logger
}

// NewDirectory creates a directory handle. An empty path keeps the index in
// memory. Nothing is opened until first use.
func NewDirectory(path string, m mapping.IndexMapping, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{path: path, mapping: m, logger: logger}
}

// Path returns the index path, empty for in-memory directories.
func (d *Directory) Path() string { return d.path }

// InMemory reports whether the index lives only in memory.
func (d *Directory) InMemory() bool { return d.path == "" }

// LockPath returns the writer lock file, a sibling of the index directory.
func (d *Directory) LockPath() string {
	if d.InMemory() {
		return ""
	}
	return d.path + ".lock"
}

func (d *Directory) name() string {
	if d.InMemory() {
		return "memory"
	}
	return d.path
}

// Index returns the shared bleve index, opening or creating it on first use.
func (d *Directory) Index() (bleve.Index, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, mirrorerrors.New(mirrorerrors.ErrCodeInternal, "index directory is closed", nil).
			WithDetail("path", d.name())
	}
	if d.index != nil {
		return d.index, nil
	}
	idx, err := d.open()
	if err != nil {
		return nil, err
	}
	d.index = idx
	return idx, nil
}

func (d *Directory) open() (bleve.Index, error) {
	if d.InMemory() {
		idx, err := bleve.NewMemOnly(d.mapping)
		if err != nil {
			return nil, mirrorerrors.InternalError("failed to create in-memory index", err)
		}
		return idx, nil
	}

	if err := validateIndexIntegrity(d.path); err != nil {
		d.logger.Warn("index_corrupted",
			slog.String("path", d.path),
			slog.String("error", err.Error()))
		return nil, corruptIndex(d.path, err)
	}

	idx, err := bleve.Open(d.path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
			return nil, mirrorerrors.Wrap(mirrorerrors.ErrCodeFileNotFound, err).WithDetail("path", d.path)
		}
		idx, err = bleve.New(d.path, d.mapping)
		if err != nil {
			return nil, mirrorerrors.InternalError(fmt.Sprintf("failed to create index %s", d.path), err)
		}
		d.logger.Info("index_created", slog.String("path", d.path))
		return idx, nil
	}
	if err != nil {
		if isCorruptionError(err) {
			return nil, corruptIndex(d.path, err)
		}
		return nil, mirrorerrors.InternalError(fmt.Sprintf("failed to open index %s", d.path), err)
	}
	return idx, nil
}

// Reset discards every document by removing and recreating the index. It
// takes the writer lock, so it fails with a lock contention error while a
// writer is open.
func (d *Directory) Reset() error {
	lock := d.newLock()
	acquired, err := lock.TryLock()
	if err != nil {
		return mirrorerrors.Wrap(mirrorerrors.ErrCodeInternal, err).WithDetail("path", d.name())
	}
	if !acquired {
		return mirrorerrors.LockContentionError(d.name())
	}
	defer func() { _ = lock.Unlock() }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.index != nil {
		if err := d.index.Close(); err != nil {
			d.logger.Warn("index_close_failed", slog.String("path", d.name()), slog.String("error", err.Error()))
		}
		d.index = nil
	}
	if !d.InMemory() {
		if err := os.RemoveAll(d.path); err != nil {
			return mirrorerrors.InternalError(fmt.Sprintf("failed to remove index %s", d.path), err)
		}
	}
	d.closed = false
	d.logger.Info("index_reset", slog.String("path", d.name()))
	return nil
}

// Close releases the shared index. Later calls to Index fail.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.index == nil {
		return nil
	}
	err := d.index.Close()
	d.index = nil
	return err
}

// validateIndexIntegrity checks a bleve index before opening it. A missing
// directory is valid (it will be created).
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error from bleve.Open indicates a damaged index.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func corruptIndex(path string, cause error) *mirrorerrors.MirrorError {
	return mirrorerrors.New(mirrorerrors.ErrCodeCorruptIndex,
		fmt.Sprintf("index %s is corrupt", path), cause).
		WithDetail("path", path).
		WithSuggestion("Rebuild the index with --mode init")
}
