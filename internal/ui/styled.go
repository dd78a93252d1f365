package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// StyledRenderer prints colored progress lines and a results table.
type StyledRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	quiet  bool
	styles Styles
}

// NewStyledRenderer creates a terminal renderer.
func NewStyledRenderer(cfg Config) *StyledRenderer {
	return &StyledRenderer{
		out:    cfg.Output,
		quiet:  cfg.Quiet,
		styles: GetStyles(cfg.NoColor),
	}
}

// Start implements Renderer.
func (r *StyledRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *StyledRenderer) UpdateProgress(event ProgressEvent) {
	if r.quiet && event.Stage != StageComplete {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stage := r.styles.Stage.Render(fmt.Sprintf("%-9s", event.Stage.String()))
	line := fmt.Sprintf("%s %s %s", stage, r.styles.Header.Render(event.Entity),
		r.styles.Label.Render(fmt.Sprintf("%d rows", event.Rows)))
	if event.Message != "" {
		line += " " + r.styles.Dim.Render(event.Message)
	}
	_, _ = fmt.Fprintln(r.out, line)
}

// AddError implements Renderer.
func (r *StyledRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	style, prefix := r.styles.Error, "error"
	if event.IsWarn {
		style, prefix = r.styles.Warning, "warn"
	}
	_, _ = fmt.Fprintf(r.out, "%s %s %v\n", style.Render(prefix), event.Entity, event.Err)
}

// Complete implements Renderer.
func (r *StyledRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	title := "Sync complete"
	if stats.Process != "" {
		title = fmt.Sprintf("Sync complete: %s (%s)", stats.Process, stats.Mode)
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(title))
	_, _ = fmt.Fprintln(r.out, renderTable(r.styles, resultHeaders, resultRows(r.styles, stats.Entities)))

	summary := fmt.Sprintf("%d entities in %s", len(stats.Entities), formatDuration(stats.Duration))
	if failed := stats.Failed(); failed > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Error.Render(fmt.Sprintf("%s, %d failed", summary, failed)))
		return
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Success.Render(summary))
}

// Stop implements Renderer.
func (r *StyledRenderer) Stop() error {
	return nil
}
