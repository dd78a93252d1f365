package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Rotation controls when a RotatingWriter starts a new file and how many
// old files it keeps.
type Rotation struct {
	// MaxSizeMB is the size a file may reach before the next record rotates it.
	MaxSizeMB int
	// MaxFiles is how many rotated files (sync.log.1 .. sync.log.N) survive.
	MaxFiles int
	// Buffered skips the fsync after each record; Sync and Close still flush.
	Buffered bool
}

// RotatingWriter is an io.Writer over a log file that rotates by size:
// sync.log becomes sync.log.1, sync.log.1 becomes sync.log.2, and the
// oldest beyond MaxFiles is removed.
type RotatingWriter struct {
	path string
	rot  Rotation

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, rot Rotation) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{path: path, rot: rot}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when p would push a non-empty file past
// MaxSizeMB.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.written > 0 && w.written+int64(len(p)) > w.maxBytes() {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
			if w.file == nil {
				return 0, err
			}
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err == nil && !w.rot.Buffered {
		err = w.file.Sync()
	}
	return n, err
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close flushes and closes the current file. Later writes fail.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	_ = w.file.Sync()
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) maxBytes() int64 {
	return int64(w.rot.MaxSizeMB) * 1024 * 1024
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) generation(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// rotate shifts every generation up by one and reopens an empty file.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	keep := w.rot.MaxFiles
	if keep <= 0 {
		_ = os.Remove(w.path)
		return w.open()
	}

	_ = os.Remove(w.generation(keep))
	for n := keep - 1; n >= 1; n-- {
		_ = os.Rename(w.generation(n), w.generation(n+1))
	}
	if err := os.Rename(w.path, w.generation(1)); err != nil {
		// keep logging into the current file
		_ = w.open()
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return w.open()
}
