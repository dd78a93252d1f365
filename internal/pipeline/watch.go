package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/dalenewman/tflmirror/internal/config"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// watchTarget maps a watched directory entry to the entities it feeds.
type watchTarget struct {
	dir string
	// match reports whether a changed path belongs to the input.
	match    func(path string) bool
	entities []string
}

// Watch re-syncs entities incrementally whenever their input changes,
// until ctx is cancelled. The caller runs the initial sync.
func (r *Runner) Watch(ctx context.Context) error {
	targets, err := r.watchTargets()
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return mirrorerrors.InternalError("failed to create file watcher", err)
	}
	defer fsw.Close()

	for _, t := range targets {
		if err := fsw.Add(t.dir); err != nil {
			return mirrorerrors.New(mirrorerrors.ErrCodeFileNotFound,
				fmt.Sprintf("failed to watch %s", t.dir), err).WithDetail("path", t.dir)
		}
		r.logger.Debug("watch_added", slog.String("dir", t.dir), slog.Any("entities", t.entities))
	}

	debouncer := NewDebouncer(r.cfg.WatchDebounce())
	defer debouncer.Stop()

	r.logger.Info("watch_started", slog.Int("inputs", len(targets)))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch_stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			for _, t := range targets {
				if t.match(event.Name) {
					for _, name := range t.entities {
						debouncer.Add(name)
					}
				}
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch_error", slog.String("error", err.Error()))

		case entities, ok := <-debouncer.Output():
			if !ok {
				return nil
			}
			r.logger.Info("watch_triggered", slog.Any("entities", entities))
			// failures are rendered and logged per entity; keep watching
			_, _ = r.Run(ctx, RunOptions{Mode: schema.ModeIncremental, Entities: entities})
		}
	}
}

// watchTargets groups entities by the directory their input lives in. A
// sqlite input is its database file plus journal siblings; a bleve input
// is the store directory of the entity's index.
func (r *Runner) watchTargets() ([]watchTarget, error) {
	byKey := make(map[string]*watchTarget)
	var order []string

	for _, e := range r.cfg.BuildEntities() {
		conn, ok := r.cfg.InputOf(e.Name)
		if !ok {
			return nil, mirrorerrors.ConfigError(fmt.Sprintf("entity %s has no input connection", e.Name), nil)
		}

		var key, dir string
		var match func(string) bool
		switch strings.ToLower(conn.Provider) {
		case config.ProviderSQLite:
			file := filepath.Clean(r.cfg.ResolvePath(conn.File))
			key, dir = file, filepath.Dir(file)
			match = func(path string) bool {
				return strings.HasPrefix(filepath.Clean(path), file)
			}
		case config.ProviderBleve:
			index := filepath.Join(r.cfg.ResolvePath(conn.Folder), e.OutputName())
			key, dir = index, filepath.Join(index, "store")
			match = func(path string) bool {
				return strings.HasPrefix(filepath.Clean(path), index)
			}
		default:
			return nil, mirrorerrors.ConfigError(fmt.Sprintf("unsupported provider %s", conn.Provider), nil)
		}

		t, ok := byKey[key]
		if !ok {
			t = &watchTarget{dir: dir, match: match}
			byKey[key] = t
			order = append(order, key)
		}
		t.entities = append(t.entities, e.OutputName())
	}

	targets := make([]watchTarget, 0, len(order))
	for _, key := range order {
		targets = append(targets, *byKey[key])
	}
	return targets, nil
}
