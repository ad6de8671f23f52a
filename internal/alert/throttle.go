package alert

import "time"

// Throttle limits periodic status alerts to one per interval, while letting
// event-driven alerts (fills, rejections, termination) through immediately.
// An immediate send also resets the interval so a periodic alert does not
// follow right behind it.
type Throttle struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewThrottle creates a throttle with the given minimum interval between
// periodic sends. The first periodic send is allowed immediately.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether a send may happen now. When immediate is true the
// send is always allowed. Either way an allowed send marks the time.
func (t *Throttle) Allow(immediate bool) bool {
	now := t.now()
	if immediate || t.last.IsZero() || now.Sub(t.last) >= t.interval {
		t.last = now
		return true
	}
	return false
}
