// internal/poller/runner.go
package poller

import (
	"context"
	"errors"
	"time"
)

var ErrStopped = errors.New("poller: stopped")

// StartPolling begins periodic cycles at interval, the first one immediately.
// Calling it again with the same interval is a no-op; a different interval
// replaces the running loop.
func (p *Poller) StartPolling(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("poller: interval must be > 0")
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.cancel != nil && p.interval == interval {
		return nil
	}
	p.haltLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.interval = interval
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		p.run(ctx, interval)
	}()

	p.log.Info().Dur("interval", interval).Msg("polling started")
	return nil
}

// Interval returns the period of the running loop, zero when idle.
func (p *Poller) Interval() time.Duration {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.interval
}

// Stop ends polling permanently and waits for the loop to exit.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.haltLocked()
	if !p.stopped {
		p.stopped = true
		close(p.results)
	}
}

func (p *Poller) haltLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.interval = 0
}

// run polls until ctx is done. One goroutine per device. No overlap.
func (p *Poller) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.emit(p.PollOnce(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) emit(res PollResult) {
	if errors.Is(res.Err, context.Canceled) {
		return
	}
	select {
	case p.results <- res:
	default:
		p.log.Debug().Msg("poll result dropped, consumer busy")
	}
}
