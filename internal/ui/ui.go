// Package ui renders sync progress, results and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of an entity sync.
type Stage int

const (
	// StageExtract reads rows from the input.
	StageExtract Stage = iota
	// StageWrite mirrors batches into the index.
	StageWrite
	// StageReconcile flags rows that left the input.
	StageReconcile
	// StageComplete marks an entity as done.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "Extract"
	case StageWrite:
		return "Write"
	case StageReconcile:
		return "Reconcile"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageExtract:
		return "READ"
	case StageWrite:
		return "WRITE"
	case StageReconcile:
		return "RECON"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports progress of one entity.
type ProgressEvent struct {
	Entity  string
	Stage   Stage
	Rows    int
	Message string
}

// ErrorEvent reports a failure or warning for one entity.
type ErrorEvent struct {
	Entity string
	Err    error
	IsWarn bool
}

// EntityStats is the outcome of syncing one entity.
type EntityStats struct {
	Entity   string
	Rows     int
	Inserts  uint64
	Updates  uint64
	Deletes  uint64
	Duration time.Duration
	Err      error
}

// CompletionStats summarizes a sync run.
type CompletionStats struct {
	Process  string
	Mode     string
	Entities []EntityStats
	Duration time.Duration
}

// Failed counts entities that ended in error.
func (s CompletionStats) Failed() int {
	n := 0
	for _, e := range s.Entities {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// Renderer displays sync progress. Implementations are safe for use by
// concurrent entity workers.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete prints the run summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Quiet      bool
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithQuiet suppresses per-batch progress lines.
func WithQuiet(quiet bool) ConfigOption {
	return func(c *Config) {
		c.Quiet = quiet
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a styled renderer for interactive terminals and a
// plain one for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	return NewStyledRenderer(cfg)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	// Check if it's a file that's a terminal
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
