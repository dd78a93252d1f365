package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	quiet  bool
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:   cfg.Output,
		quiet: cfg.Quiet,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	if r.quiet && event.Stage != StageComplete {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Format: [STAGE] entity: rows - message
	switch {
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s: %d rows - %s\n", event.Stage.Icon(), event.Entity, event.Rows, event.Message)
	default:
		_, _ = fmt.Fprintf(r.out, "[%s] %s: %d rows\n", event.Stage.Icon(), event.Entity, event.Rows)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Entity != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Entity, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inserts, updates, deletes uint64
	for _, e := range stats.Entities {
		inserts += e.Inserts
		updates += e.Updates
		deletes += e.Deletes
	}
	_, _ = fmt.Fprintf(r.out, "Complete: %d entities (%d inserts, %d updates, %d deletes) in %s",
		len(stats.Entities), inserts, updates, deletes, formatDuration(stats.Duration))
	if failed := stats.Failed(); failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", failed)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Errors returns the errors reported so far.
func (r *PlainRenderer) Errors() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEvent(nil), r.errors...)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
