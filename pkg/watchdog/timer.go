package watchdog

import (
	"sync/atomic"
	"time"
)

// SilenceTimer tracks the last time speech was observed.
// The zero value starts at the Unix epoch; use NewSilenceTimer.
type SilenceTimer struct {
	last atomic.Int64 // unix nanoseconds
}

// NewSilenceTimer creates a timer whose last speech is at start.
func NewSilenceTimer(start time.Time) *SilenceTimer {
	t := &SilenceTimer{}
	t.last.Store(start.UnixNano())
	return t
}

// Touch records speech at the given time. Older timestamps are ignored.
func (t *SilenceTimer) Touch(at time.Time) {
	ts := at.UnixNano()
	for {
		current := t.last.Load()
		if ts <= current {
			return
		}
		if t.last.CompareAndSwap(current, ts) {
			return
		}
	}
}

// Last returns the most recent speech timestamp.
func (t *SilenceTimer) Last() time.Time {
	return time.Unix(0, t.last.Load())
}

// Idle returns how long there has been no speech as of now.
// It is zero while a cool-down pushed the timestamp into the future.
func (t *SilenceTimer) Idle(now time.Time) time.Duration {
	d := now.Sub(t.Last())
	if d < 0 {
		return 0
	}
	return d
}
