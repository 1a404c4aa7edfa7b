// internal/poller/poller.go
//
// Package poller keeps the typed state cache of one device.
// It owns the snapshot; everything else reads copies.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/transport"
)

// DefaultFailureThreshold is the number of consecutive failed cycles
// after which a stale slot degrades to an error.
const DefaultFailureThreshold = 3

// Session abstracts the serialized device access the poller needs.
type Session interface {
	Read(ctx context.Context, spec register.Spec) (uint16, error)
	Write(ctx context.Context, spec register.Spec, value uint16) (session.Ack, error)
}

// Recorder receives poll and write telemetry.
type Recorder interface {
	PollCycle(elapsed time.Duration, failed int)
	Write(register string, err error)
}

type nopRecorder struct{}

func (nopRecorder) PollCycle(time.Duration, int) {}
func (nopRecorder) Write(string, error)          {}

// Config is the immutable runtime config of a poller.
type Config struct {
	Device           string
	Model            register.Model
	FailureThreshold int
}

// Poller reads every register of its model and publishes snapshots.
type Poller struct {
	cfg    Config
	sess   Session
	log    zerolog.Logger
	rec    Recorder
	active []register.Spec

	// mu orders snapshot mutations; readers use snap without locking.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]

	runMu    sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
	results  chan PollResult
}

// New creates a poller. Registers outside the model are marked
// unavailable here and never polled.
func New(cfg Config, sess Session, logger zerolog.Logger, rec Recorder) (*Poller, error) {
	if cfg.Device == "" {
		return nil, errors.New("poller: device name required")
	}
	if sess == nil {
		return nil, errors.New("poller: session is nil")
	}
	if _, err := register.ParseModel(string(cfg.Model)); err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if rec == nil {
		rec = nopRecorder{}
	}

	p := &Poller{
		cfg:     cfg,
		sess:    sess,
		log:     logger,
		rec:     rec,
		active:  register.ForModel(cfg.Model),
		results: make(chan PollResult, 1),
	}

	all := register.All()
	snap := Snapshot{
		Device: cfg.Device,
		Model:  cfg.Model,
		Slots:  make([]Slot, 0, len(all)),
	}
	for _, spec := range all {
		kind := SlotStale
		if !spec.SupportedBy(cfg.Model) {
			kind = SlotUnavailable
		}
		snap.Slots = append(snap.Slots, Slot{Spec: spec, Kind: kind})
	}
	p.snap.Store(&snap)

	return p, nil
}

// Active returns the registers polled each cycle.
func (p *Poller) Active() []register.Spec {
	out := make([]register.Spec, len(p.active))
	copy(out, p.active)
	return out
}

// Snapshot returns the last published view. It never blocks.
func (p *Poller) Snapshot() Snapshot {
	return p.snap.Load().clone()
}

// Results delivers poll results to a single consumer.
// A result is dropped when the consumer falls behind.
func (p *Poller) Results() <-chan PollResult { return p.results }

// PollOnce performs exactly one poll cycle.
// A failing register does not abort the cycle; its slot degrades instead.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	start := time.Now()
	res := PollResult{Device: p.cfg.Device}

	for _, spec := range p.active {
		begun := time.Now()
		raw, err := p.sess.Read(ctx, spec)

		if err != nil && ctx.Err() != nil {
			// shutting down; leave the slot as it was
			res.Err = ctx.Err()
			break
		}

		p.apply(spec, begun, raw, err)

		if err != nil {
			res.Failed++
			if res.Err == nil {
				res.Err = err
			}
			p.log.Debug().Err(err).Str("register", spec.Name).Msg("poll read failed")
		}
	}

	res.At = time.Now()
	res.Snapshot = p.publish(func(s *Snapshot) { s.LastPoll = res.At })

	p.rec.PollCycle(time.Since(start), res.Failed)
	return res
}

// apply folds one read outcome into the snapshot.
func (p *Poller) apply(spec register.Spec, begun time.Time, raw uint16, err error) {
	p.publish(func(s *Snapshot) {
		sl := slotOf(s, spec.Name)
		if sl == nil {
			return
		}

		// A write landed while this read was in flight; the read is older.
		if sl.writtenAt.After(begun) {
			return
		}

		if err == nil {
			sl.Kind = SlotValue
			sl.Value = register.Decode(spec, raw)
			sl.HasValue = true
			sl.LastSuccess = time.Now()
			sl.Err = nil
			sl.Failures = 0
			return
		}

		sl.Failures++
		sl.Err = err
		switch {
		case !isUnreachable(err):
			sl.Kind = SlotError
		case sl.Failures >= p.cfg.FailureThreshold:
			sl.Kind = SlotError
		default:
			sl.Kind = SlotStale
		}
	})
}

// publish applies fn to a copy of the snapshot and stores it atomically.
func (p *Poller) publish(fn func(*Snapshot)) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.snap.Load().clone()
	fn(&next)
	p.snap.Store(&next)
	return next.clone()
}

func slotOf(s *Snapshot, name string) *Slot {
	for i := range s.Slots {
		if s.Slots[i].Spec.Name == name {
			return &s.Slots[i]
		}
	}
	return nil
}

// isUnreachable reports whether err means the device could not be reached,
// as opposed to the device answering with a rejection.
func isUnreachable(err error) bool {
	return errors.Is(err, session.ErrDeviceUnreachable) ||
		errors.Is(err, transport.ErrConnection) ||
		errors.Is(err, transport.ErrConnectionRefused)
}
