// internal/poller/write.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
)

// ErrRequiresPowerOn rejects mode changes while the unit is switched off.
var ErrRequiresPowerOn = errors.New("poller: power must be on")

// Registers whose writes are only accepted by a running unit.
var needsPower = map[string]bool{
	register.BypassMode:          true,
	register.InternalCirculation: true,
}

// SubmitWrite validates and performs one write, then updates the snapshot
// optimistically so readers see the new value before the next poll.
// Validation failures never reach the wire.
func (p *Poller) SubmitWrite(ctx context.Context, name string, value uint16) (session.Ack, error) {
	intent, err := p.intent(name, value)
	if err != nil {
		p.rec.Write(name, err)
		return session.Ack{}, err
	}

	ack, err := p.sess.Write(ctx, intent.Spec, intent.Value)
	p.rec.Write(name, err)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("register", name).
			Uint16("value", value).
			Msg("write failed")
		return session.Ack{}, err
	}

	p.publish(func(s *Snapshot) {
		sl := slotOf(s, intent.Spec.Name)
		now := time.Now()
		sl.Kind = SlotValue
		sl.Value = register.Decode(intent.Spec, ack.Value)
		sl.HasValue = true
		sl.LastSuccess = now
		sl.Err = nil
		sl.Failures = 0
		sl.writtenAt = now
	})

	p.log.Info().
		Str("register", name).
		Uint16("value", ack.Value).
		Dur("latency", time.Since(intent.SubmittedAt)).
		Msg("write applied")
	return ack, nil
}

// intent checks a write against the register table and the cached state.
func (p *Poller) intent(name string, value uint16) (WriteIntent, error) {
	spec, ok := register.Find(name)
	if !ok {
		return WriteIntent{}, fmt.Errorf("%w: %q", register.ErrUnknownRegister, name)
	}
	if !spec.SupportedBy(p.cfg.Model) {
		return WriteIntent{}, fmt.Errorf("%w: %s on model %s", register.ErrUnsupportedRegister, name, p.cfg.Model)
	}
	if err := spec.CheckWrite(value); err != nil {
		return WriteIntent{}, err
	}

	if needsPower[name] {
		pw, ok := p.snap.Load().Current(register.Power)
		if !ok || pw.Raw != register.PowerOn {
			return WriteIntent{}, fmt.Errorf("%w: cannot set %s", ErrRequiresPowerOn, name)
		}
	}

	return WriteIntent{Spec: spec, Value: value, SubmittedAt: time.Now()}, nil
}
