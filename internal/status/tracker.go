// internal/status/tracker.go
package status

import (
	"github.com/tamzrod/erv-controller/internal/poller"
)

// Tracker owns the health state of one device.
// It is driven by poll results and a 1 Hz tick; it is not safe for concurrent use.
type Tracker struct {
	cur Snapshot
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{cur: Snapshot{Health: HealthUnknown}}
}

// Current returns the tracked snapshot.
func (t *Tracker) Current() Snapshot { return t.cur }

// Observe folds a poll result into the health state.
// code is the numeric code of res.Err. changed reports whether a slot moved.
func (t *Tracker) Observe(res poller.PollResult, code uint16, connection uint16) (Snapshot, bool) {
	if t.cur.Health == HealthDisabled {
		return t.cur, false
	}

	next := t.cur
	next.Health = Health(res.Snapshot)
	next.Connection = connection
	next.StaleRegisters, next.ErrorRegisters, next.UnavailableRegisters = count(res.Snapshot)

	if next.Health == HealthOK {
		// Recovery clears the error trail.
		next.LastErrorCode = 0
		next.SecondsInError = 0
	} else if res.Err != nil {
		next.LastErrorCode = code
	}
	// NOTE: seconds_in_error increments on Tick only.

	changed := next != t.cur
	t.cur = next
	return next, changed
}

// Tick advances seconds_in_error while the device is not OK.
// The counter saturates instead of wrapping.
func (t *Tracker) Tick() (Snapshot, bool) {
	switch t.cur.Health {
	case HealthOK, HealthDisabled:
		return t.cur, false
	}
	if t.cur.SecondsInError >= MaxSecondsInError {
		return t.cur, false
	}
	t.cur.SecondsInError++
	return t.cur, true
}

// Disable marks the device as shut down. Later observations are ignored.
func (t *Tracker) Disable() Snapshot {
	t.cur.Health = HealthDisabled
	t.cur.Connection = 0
	return t.cur
}

// Health derives a health code from a device snapshot.
func Health(s poller.Snapshot) uint16 {
	if s.LastPoll.IsZero() {
		return HealthUnknown
	}
	stale, errs, _ := count(s)
	switch {
	case errs > 0:
		return HealthError
	case stale > 0:
		return HealthStale
	}
	return HealthOK
}

func count(s poller.Snapshot) (stale, errs, unavailable uint16) {
	for _, sl := range s.Slots {
		switch sl.Kind {
		case poller.SlotStale:
			stale++
		case poller.SlotError:
			errs++
		case poller.SlotUnavailable:
			unavailable++
		}
	}
	return stale, errs, unavailable
}
