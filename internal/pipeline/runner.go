// Package pipeline runs a configured process: every entity is read from its
// input connection and mirrored into the output index.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dalenewman/tflmirror/internal/config"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/mirror"
	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/ui"
)

// Dependencies contains the injected dependencies for Runner.
type Dependencies struct {
	// Config is the loaded process (required).
	Config *config.Config

	// Renderer for progress display. Defaults to a silent plain renderer.
	Renderer ui.Renderer

	// Logger for structured sync records. Defaults to slog.Default().
	Logger *slog.Logger
}

// RunOptions narrows a run.
type RunOptions struct {
	// Mode overrides the configured mode when set.
	Mode schema.Mode
	// Entities limits the run to these names or aliases; empty runs all.
	Entities []string
}

// Result is the outcome of syncing one entity.
type Result struct {
	Entity   string
	Rows     int
	Inserts  uint64
	Updates  uint64
	Deletes  uint64
	Duration time.Duration
	Err      error
}

// Runner syncs the entities of a process. Entities run concurrently up to
// performance.workers; batches within an entity run in order.
type Runner struct {
	cfg         *config.Config
	renderer    ui.Renderer
	logger      *slog.Logger
	searchTypes schema.SearchTypes

	// contexts keeps each mirror context, and its identity cache, across
	// runs of the same Runner.
	mu       sync.Mutex
	contexts map[string]*mirror.Context
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.NewPlainRenderer(ui.NewConfig(io.Discard))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:         deps.Config,
		renderer:    renderer,
		logger:      logger,
		searchTypes: deps.Config.BuildSearchTypes(),
		contexts:    make(map[string]*mirror.Context),
	}, nil
}

// Run syncs the selected entities and reports the results. The error joins
// every entity failure; the results are complete either way.
func (r *Runner) Run(ctx context.Context, opts RunOptions) ([]Result, error) {
	mode := opts.Mode
	if mode == "" {
		mode = r.cfg.ModeValue()
	}

	var entities []*schema.Entity
	for _, e := range r.cfg.BuildEntities() {
		if len(opts.Entities) == 0 || slices.Contains(opts.Entities, e.Name) || slices.Contains(opts.Entities, e.OutputName()) {
			entities = append(entities, e)
		}
	}
	if len(entities) == 0 {
		return nil, mirrorerrors.New(mirrorerrors.ErrCodeInvalidInput,
			fmt.Sprintf("no entity matches %v", opts.Entities), nil)
	}

	start := time.Now()
	results := make([]Result, len(entities))

	var g errgroup.Group
	g.SetLimit(r.cfg.Performance.Workers)
	for i, e := range entities {
		g.Go(func() error {
			results[i] = r.runEntity(ctx, e, mode)
			return nil
		})
	}
	_ = g.Wait()

	stats := ui.CompletionStats{
		Process:  r.cfg.Name,
		Mode:     string(mode),
		Duration: time.Since(start),
	}
	var errs []error
	for _, res := range results {
		stats.Entities = append(stats.Entities, ui.EntityStats{
			Entity:   res.Entity,
			Rows:     res.Rows,
			Inserts:  res.Inserts,
			Updates:  res.Updates,
			Deletes:  res.Deletes,
			Duration: res.Duration,
			Err:      res.Err,
		})
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	r.renderer.Complete(stats)

	r.logger.Info("sync_completed",
		slog.String("mode", string(mode)),
		slog.Int("entities", len(entities)),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", stats.Duration))

	if len(errs) > 0 {
		return results, fmt.Errorf("%d of %d entities failed: %w", len(errs), len(entities), stderrors.Join(errs...))
	}
	return results, nil
}

// Close releases every mirror context opened by the runner.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, c := range r.contexts {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.contexts, name)
	}
	return stderrors.Join(errs...)
}

// mirrorContext returns the cached output context for e, rebinding it to
// e so this run's counters start at zero.
func (r *Runner) mirrorContext(e *schema.Entity) (*mirror.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contexts[e.OutputName()]; ok {
		c.Rebind(e)
		return c, nil
	}
	c, err := mirror.NewContext(e, mirror.Options{
		Folder:            r.cfg.OutputFolder(),
		Side:              schema.SideMirror,
		SearchTypes:       r.searchTypes,
		IdentityCacheSize: r.cfg.Performance.IdentityCacheSize,
		Logger:            r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.contexts[e.OutputName()] = c
	return c, nil
}

func (r *Runner) runEntity(ctx context.Context, e *schema.Entity, mode schema.Mode) Result {
	start := time.Now()
	res := Result{Entity: e.OutputName()}

	err := r.syncEntity(ctx, e, mode, &res)

	res.Inserts, res.Updates, res.Deletes = e.Inserts, e.Updates, e.Deletes
	res.Duration = time.Since(start)
	res.Err = err

	if err != nil {
		r.renderer.AddError(ui.ErrorEvent{Entity: res.Entity, Err: err})
		r.logger.Error("entity_sync_failed",
			slog.String("entity", res.Entity),
			slog.String("code", mirrorerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return res
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Entity:  res.Entity,
		Stage:   ui.StageComplete,
		Rows:    res.Rows,
		Message: fmt.Sprintf("%d inserts, %d updates, %d deletes", res.Inserts, res.Updates, res.Deletes),
	})
	return res
}

func (r *Runner) syncEntity(ctx context.Context, e *schema.Entity, mode schema.Mode, res *Result) error {
	out, err := r.mirrorContext(e)
	if err != nil {
		return err
	}

	if mode == schema.ModeInit {
		if err := r.withLock(ctx, out.Initialize); err != nil {
			return err
		}
	}

	src, err := r.openSource(ctx, e, out, mode)
	if err != nil {
		return err
	}
	defer src.Close()

	r.renderer.UpdateProgress(ui.ProgressEvent{Entity: res.Entity, Stage: ui.StageExtract, Message: src.describe})

	writer := mirror.NewWriter(out, mode)
	batchSize := r.cfg.Performance.BatchSize
	batch := make([]schema.Row, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		written, err := mirrorerrors.RetryWithResult(ctx, r.lockRetry(), func() (mirror.WriteResult, error) {
			return writer.Write(ctx, batch)
		})
		if err != nil {
			return err
		}
		res.Rows += len(batch)
		batch = batch[:0]
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Entity:  res.Entity,
			Stage:   ui.StageWrite,
			Rows:    res.Rows,
			Message: fmt.Sprintf("+%d inserts, +%d updates", written.Inserts, written.Updates),
		})
		return nil
	}

	for row, err := range src.rows.Read(ctx) {
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if mode == schema.ModeInit || !e.Delete {
		return nil
	}
	deleted, err := mirrorerrors.RetryWithResult(ctx, r.lockRetry(), func() (int, error) {
		return mirror.NewReconciler(src.keys, out).Reconcile(ctx)
	})
	if err != nil {
		return err
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Entity:  res.Entity,
		Stage:   ui.StageReconcile,
		Rows:    res.Rows,
		Message: fmt.Sprintf("%d flagged deleted", deleted),
	})
	return nil
}

// withLock runs fn, retrying lock contention up to performance.lock_retries times.
func (r *Runner) withLock(ctx context.Context, fn func() error) error {
	return mirrorerrors.Retry(ctx, r.lockRetry(), fn)
}

func (r *Runner) lockRetry() mirrorerrors.RetryConfig {
	return mirrorerrors.LockRetryConfig(r.cfg.Performance.LockRetries)
}
