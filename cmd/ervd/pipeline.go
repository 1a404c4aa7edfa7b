// cmd/ervd/pipeline.go
package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/erv"
	"github.com/tamzrod/erv-controller/internal/metrics"
	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/status"
	"github.com/tamzrod/erv-controller/internal/writer"
)

// source is the part of a device the pipeline consumes.
type source interface {
	Results() <-chan poller.PollResult
	State() session.State
}

// pipeline owns the health state of one device and drives its sinks.
// Sinks may be nil.
type pipeline struct {
	name    string
	src     source
	log     zerolog.Logger
	metrics *metrics.Metrics

	sinks  []writer.Writer
	status writer.StatusWriter

	tick time.Duration
}

// run returns when the device results channel is closed.
func (p *pipeline) run() {
	tracker := status.NewTracker()

	tick := p.tick
	if tick <= 0 {
		tick = time.Second
	}
	secTicker := time.NewTicker(tick)
	defer secTicker.Stop()

	// identity re-assert on start
	p.writeStatus(tracker.Current())
	p.setHealth(tracker.Current().Health)

	results := p.src.Results()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				snap := tracker.Disable()
				p.writeStatus(snap)
				p.setHealth(snap.Health)
				return
			}
			p.deliver(res)

			snap, changed := tracker.Observe(res, erv.ErrorCode(res.Err), uint16(p.src.State()))
			p.setHealth(snap.Health)
			if changed {
				p.writeStatus(snap)
			}

		case <-secTicker.C:
			if snap, changed := tracker.Tick(); changed {
				p.writeStatus(snap)
			}
		}
	}
}

func (p *pipeline) deliver(res poller.PollResult) {
	if p.metrics != nil {
		p.metrics.UpdateSnapshot(res.Snapshot)
	}
	for _, w := range p.sinks {
		if err := w.Write(res); err != nil {
			p.log.Warn().Err(err).Msg("sink write failed")
		}
	}
}

func (p *pipeline) writeStatus(s status.Snapshot) {
	if p.status == nil {
		return
	}
	if err := p.status.WriteStatus(s); err != nil {
		p.log.Warn().Err(err).Str("health", status.HealthName(s.Health)).Msg("status write failed")
	}
}

func (p *pipeline) setHealth(h uint16) {
	if p.metrics != nil {
		p.metrics.SetHealth(p.name, h)
	}
}
