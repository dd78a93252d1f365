package pipeline

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Debouncer coalesces bursts of input changes into one sync per entity.
// Every change restarts the window; when it elapses the pending entities
// are emitted as one sorted batch.
type Debouncer struct {
	window  time.Duration
	pending map[string]time.Time
	mu      sync.Mutex
	output  chan []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a new debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]time.Time),
		output:  make(chan []string, 10),
	}
}

// Add marks entity as changed.
func (d *Debouncer) Add(entity string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[entity] = time.Now()
	d.scheduleFlush()
}

// scheduleFlush schedules a flush after the debounce window.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending entities.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	entities := make([]string, 0, len(d.pending))
	for name := range d.pending {
		entities = append(entities, name)
	}
	slices.Sort(entities)
	d.pending = make(map[string]time.Time)

	// Non-blocking send
	select {
	case d.output <- entities:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(entities)),
		)
	}
}

// Output returns the channel of debounced entity batches.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
