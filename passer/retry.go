//go:build !windows
// +build !windows

package passer

import (
	"time"

	"github.com/xtaci/fdpasser/ioloop"
)

// DefaultRetryInterval is used when Config.RetryInterval is zero: frequent
// enough to recover quickly once table pressure eases, long enough not to
// busy-loop the sentinel reservation.
const DefaultRetryInterval = 200 * time.Millisecond

// retryTimer drives repeated Sentinel.Reacquire attempts while a Passer is
// in retry mode. It never gives up: descriptor-table exhaustion is
// considered an external, eventually-resolving condition, never fatal.
type retryTimer struct {
	watcher  ioloop.Watcher
	interval time.Duration
	handle   ioloop.Timer
}

func newRetryTimer(w ioloop.Watcher, interval time.Duration) *retryTimer {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &retryTimer{watcher: w, interval: interval}
}

// start schedules onFire once, after the retry interval. Callers re-invoke
// start from onFire to keep retrying on repeated failure.
func (r *retryTimer) start(onFire func()) {
	r.handle = r.watcher.ScheduleTimer(r.interval, onFire)
}

func (r *retryTimer) stop() {
	if r.handle != nil {
		r.handle.Stop()
		r.handle = nil
	}
}
