package voice

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Debouncer rate-limits captures per speaker. A speaker is allowed again
// once window has passed since their last allowed capture; denied attempts
// do not move the window.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	last   *xsync.MapOf[string, time.Time]
}

// NewDebouncer returns a Debouncer with the given window. now may be nil to
// use [time.Now].
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{
		window: window,
		now:    now,
		last:   xsync.NewMapOf[string, time.Time](),
	}
}

// Allow reports whether a capture for userID may start now and, if so,
// records it. The check and the update are atomic per user.
func (d *Debouncer) Allow(userID string) bool {
	allowed := false
	d.last.Compute(userID, func(prev time.Time, loaded bool) (time.Time, bool) {
		now := d.now()
		if loaded && now.Sub(prev) < d.window {
			return prev, false
		}
		allowed = true
		return now, false
	})
	return allowed
}

// Forget drops the entry for userID.
func (d *Debouncer) Forget(userID string) {
	d.last.Delete(userID)
}
