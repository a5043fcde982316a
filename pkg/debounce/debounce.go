// Package debounce collapses bursts of calls into a single trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once after delay has elapsed since the last Trigger.
// Every Trigger cancels the previously scheduled call. There is no leading-edge call.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// New creates a Debouncer for fn with the given delay.
func New(delay time.Duration, fn func()) *Debouncer {
	if fn == nil {
		panic("debounce: fn cannot be nil")
	}
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{
		delay: delay,
		fn:    fn,
	}
}

// Func returns a zero-argument trigger for fn.
func Func(delay time.Duration, fn func()) func() {
	return New(delay, fn).Trigger
}

// Trigger schedules fn after the delay, replacing any pending schedule.
// It is a no-op after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	// seq guards against a timer that already fired and is waiting on mu.
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.seq != seq || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.fn()
	})
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending call immediately on the calling goroutine.
// Returns false if nothing was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	d.mu.Unlock()

	d.fn()
	return true
}

// Stop cancels any pending call and disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
