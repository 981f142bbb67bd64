package service

import (
	"sync"
	"time"
)

// Debouncer batches rapid successive page edits into one propagated update
// after a quiet period. A newer edit supersedes the pending one.
type Debouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	timer *time.Timer
}

func NewDebouncer(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.quiet <= 0 {
		d.timer = nil
		fn()
		return
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Cancel drops any pending propagation; used when a terminal transition is
// about to send authoritative state anyway.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
