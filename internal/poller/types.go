// internal/poller/types.go
package poller

import (
	"encoding/json"
	"time"

	"github.com/tamzrod/erv-controller/internal/register"
)

// SlotKind classifies one snapshot slot. Exactly one holds at a time.
type SlotKind uint8

const (
	SlotStale SlotKind = iota
	SlotValue
	SlotUnavailable
	SlotError
)

func (k SlotKind) String() string {
	switch k {
	case SlotValue:
		return "value"
	case SlotUnavailable:
		return "unavailable"
	case SlotStale:
		return "stale"
	case SlotError:
		return "error"
	}
	return "unknown"
}

// Slot is the cached state of one register.
type Slot struct {
	Spec register.Spec
	Kind SlotKind

	// Value is the current reading for SlotValue and the last good
	// reading otherwise; HasValue is false until one was obtained.
	Value       register.Value
	HasValue    bool
	LastSuccess time.Time

	// Err is the failure behind SlotError, or the latest failure behind SlotStale.
	Err error

	// Failures counts consecutive failed poll cycles.
	Failures int

	// writtenAt is the time of the last optimistic update.
	writtenAt time.Time
}

func (s Slot) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name        string          `json:"name"`
		Address     uint16          `json:"address"`
		Access      string          `json:"access"`
		Unit        string          `json:"unit,omitempty"`
		State       string          `json:"state"`
		Value       *register.Value `json:"value,omitempty"`
		LastSuccess *time.Time      `json:"last_success,omitempty"`
		Error       string          `json:"error,omitempty"`
		Failures    int             `json:"failures,omitempty"`
	}

	w := wire{
		Name:     s.Spec.Name,
		Address:  s.Spec.Address,
		Access:   s.Spec.Access.String(),
		Unit:     s.Spec.Unit,
		State:    s.Kind.String(),
		Failures: s.Failures,
	}
	if s.HasValue {
		v := s.Value
		w.Value = &v
	}
	if !s.LastSuccess.IsZero() {
		ts := s.LastSuccess
		w.LastSuccess = &ts
	}
	if s.Err != nil {
		w.Error = s.Err.Error()
	}
	return json.Marshal(w)
}

// Snapshot is an immutable view of a device. Slots are ordered by address.
type Snapshot struct {
	Device   string         `json:"device"`
	Model    register.Model `json:"model"`
	Slots    []Slot         `json:"slots"`
	LastPoll time.Time      `json:"last_poll"`
}

// Slot returns the slot of the named register.
func (s Snapshot) Slot(name string) (Slot, bool) {
	for _, sl := range s.Slots {
		if sl.Spec.Name == name {
			return sl, true
		}
	}
	return Slot{}, false
}

// Current returns the decoded value of a register holding SlotValue.
func (s Snapshot) Current(name string) (register.Value, bool) {
	sl, ok := s.Slot(name)
	if !ok || sl.Kind != SlotValue {
		return register.Value{}, false
	}
	return sl.Value, true
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Slots = make([]Slot, len(s.Slots))
	copy(out.Slots, s.Slots)
	return out
}

// WriteIntent is one pending command.
type WriteIntent struct {
	Spec        register.Spec
	Value       uint16
	SubmittedAt time.Time
}

// PollResult is produced by one poll cycle.
type PollResult struct {
	Device   string
	At       time.Time
	Snapshot Snapshot

	// Failed counts registers that could not be read this cycle.
	Failed int
	Err    error // first failure of the cycle, nil when every read succeeded
}
