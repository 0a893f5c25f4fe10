package coordinator

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces bursts of change notifications into a single deferred
// flush. Each Schedule call resets the timer; only the final call in a burst
// fires. Flush forces the pending run immediately.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	seq    int64
	fn     func()
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Schedule arms (or re-arms) the debounce timer to run fn after the quiet
// window elapses with no further Schedule calls.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			slog.Debug("Debouncer skipping superseded run", "seq", seq)
			return
		}
		run := d.fn
		d.fn = nil
		d.timer = nil
		d.mu.Unlock()
		if run != nil {
			run()
		}
	})
}

// Flush runs any pending function immediately and disarms the timer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	run := d.fn
	d.fn = nil
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if run != nil {
		run()
	}
}

// Cancel disarms the timer and drops any pending run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
