package client

import (
	"sync"
	"time"
)

// reconnectTimer arms a single delayed reconnect attempt per failure.
// The guard runs when the timer fires, not when it is armed, so state
// changes during the delay (panel closed, project deselected) suppress
// the attempt. Scheduling again replaces any pending attempt, which
// keeps at most one timer alive.
type reconnectTimer struct {
	delay time.Duration
	guard func() bool
	fire  func()

	mu    sync.Mutex
	timer *time.Timer
}

func newReconnectTimer(delay time.Duration, guard func() bool, fire func()) *reconnectTimer {
	return &reconnectTimer{
		delay: delay,
		guard: guard,
		fire:  fire,
	}
}

// Schedule arms one attempt after the configured delay, replacing any
// pending attempt.
func (r *reconnectTimer) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}

	r.timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()

		if r.guard() {
			r.fire()
		}
	})
}

// Cancel drops any pending attempt.
func (r *reconnectTimer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
