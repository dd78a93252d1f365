package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// writeLock grants one writer at a time exclusive access to a directory.
type writeLock interface {
	TryLock() (bool, error)
	Unlock() error
}

func (d *Directory) newLock() writeLock {
	if d.InMemory() {
		return &memLock{mu: &d.memLock}
	}
	return newFileLock(d.LockPath())
}

// fileLock is a cross-process lock on a file beside the index. Each handle
// opens its own descriptor, so two handles in one process also exclude
// each other.
type fileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking.
func (l *fileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. It is safe to call more than once.
func (l *fileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// memLock is the in-process lock used by in-memory directories.
type memLock struct {
	mu     *sync.Mutex
	locked bool
}

func (l *memLock) TryLock() (bool, error) {
	l.locked = l.mu.TryLock()
	return l.locked, nil
}

func (l *memLock) Unlock() error {
	if l.locked {
		l.locked = false
		l.mu.Unlock()
	}
	return nil
}
