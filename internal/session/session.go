// internal/session/session.go
//
// Package session owns one transport adapter and serializes every exchange on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/transport"
)

var (
	// ErrDeviceUnreachable wraps the last transient cause once the retry bound is spent.
	ErrDeviceUnreachable = errors.New("session: device unreachable")

	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("session: closed")
)

// Config holds per-device protocol parameters.
type Config struct {
	SlaveID uint8
	Timeout time.Duration // per exchange
	Retries int           // attempts per call, including the first
	Backoff time.Duration // pause between attempts
}

// Ack confirms a write; fields are the echoed address and value.
type Ack struct {
	Address uint16
	Value   uint16
}

// Session is safe for concurrent use. At most one exchange is in flight.
type Session struct {
	cfg     Config
	adapter transport.Adapter
	framing codec.Framing
	log     zerolog.Logger
	rec     Recorder

	// gate is a one-slot semaphore; blocked senders are served in arrival order.
	gate    chan struct{}
	waiting atomic.Int32

	state  atomic.Int32
	closed atomic.Bool

	// guarded by gate
	tid uint16
}

// New creates a disconnected session. rec may be nil.
func New(cfg Config, adapter transport.Adapter, logger zerolog.Logger, rec Recorder) (*Session, error) {
	if adapter == nil {
		return nil, errors.New("session: adapter is nil")
	}
	if cfg.SlaveID < 1 || cfg.SlaveID > 247 {
		return nil, fmt.Errorf("session: slave id %d out of range 1..247", cfg.SlaveID)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("session: timeout must be > 0")
	}
	if cfg.Retries < 1 {
		return nil, errors.New("session: retries must be >= 1")
	}
	if cfg.Backoff < 0 {
		return nil, errors.New("session: backoff must be >= 0")
	}
	if rec == nil {
		rec = nopRecorder{}
	}

	s := &Session{
		cfg:     cfg,
		adapter: adapter,
		framing: adapter.Framing(),
		log:     logger,
		rec:     rec,
		gate:    make(chan struct{}, 1),
	}
	s.state.Store(int32(Disconnected))
	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Waiting returns how many callers are queued at the gate.
func (s *Session) Waiting() int { return int(s.waiting.Load()) }

// MaxCallDuration is the worst case a single Read or Write can block,
// not counting time spent queued behind other callers.
func (s *Session) MaxCallDuration() time.Duration {
	n := time.Duration(s.cfg.Retries)
	return n*s.cfg.Timeout + (n-1)*s.cfg.Backoff
}

// Open establishes the transport. Failures are connection errors.
func (s *Session) Open(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	return s.open(ctx)
}

// Read returns the raw content of one register.
func (s *Session) Read(ctx context.Context, spec register.Spec) (uint16, error) {
	reply, err := s.do(ctx, codec.ReadRequest(s.cfg.SlaveID, spec.Address))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", spec.Name, err)
	}
	return reply.Value, nil
}

// Write sets one register and returns the device acknowledgement.
func (s *Session) Write(ctx context.Context, spec register.Spec, value uint16) (Ack, error) {
	if !spec.Writable() {
		return Ack{}, fmt.Errorf("write %s: %w", spec.Name, register.ErrNotWritable)
	}
	reply, err := s.do(ctx, codec.WriteRequest(s.cfg.SlaveID, spec.Address, value))
	if err != nil {
		return Ack{}, fmt.Errorf("write %s: %w", spec.Name, err)
	}
	return Ack{Address: reply.Address, Value: reply.Value}, nil
}

// Close releases the transport. An in-flight exchange is aborted.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(Disconnected))
	s.log.Debug().Msg("session closed")
	return s.adapter.Close()
}

// ---- gate ----

func (s *Session) acquire(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.waiting.Add(1)
	defer s.waiting.Add(-1)

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.closed.Load() {
		<-s.gate
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) release() { <-s.gate }

// ---- request cycle ----

func (s *Session) open(ctx context.Context) error {
	if s.State() != Disconnected {
		return nil
	}

	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.state.Store(int32(Connecting))
	if err := s.adapter.Open(ctx); err != nil {
		s.state.Store(int32(Disconnected))
		s.log.Warn().Err(err).Msg("connect failed")
		return err
	}
	// Close may have run while dialing.
	if s.closed.Load() {
		_ = s.adapter.Close()
		s.state.Store(int32(Disconnected))
		return ErrSessionClosed
	}
	s.state.Store(int32(Ready))
	s.log.Info().Msg("connected")
	return nil
}

func (s *Session) do(ctx context.Context, req codec.Request) (codec.Reply, error) {
	if err := s.acquire(ctx); err != nil {
		return codec.Reply{}, err
	}
	defer s.release()

	// Cancellation aborts the exchange by closing the channel underneath it.
	stop := context.AfterFunc(ctx, func() { _ = s.adapter.Close() })
	defer stop()

	var (
		last          error
		corruptionHit bool
	)

	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if s.closed.Load() {
			return codec.Reply{}, ErrSessionClosed
		}
		if attempt > 1 {
			s.rec.Retry()
			if err := sleep(ctx, s.cfg.Backoff); err != nil {
				return codec.Reply{}, err
			}
		}

		if s.State() == Disconnected {
			s.rec.Reconnect()
			if err := s.open(ctx); err != nil {
				return codec.Reply{}, err
			}
		}

		reply, err := s.exchange(ctx, req)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return codec.Reply{}, ctx.Err()
		}
		if s.closed.Load() {
			return codec.Reply{}, ErrSessionClosed
		}

		var exc *codec.DeviceException
		switch {
		case errors.As(err, &exc):
			return codec.Reply{}, err

		case codec.IsCorruption(err):
			if corruptionHit {
				return codec.Reply{}, s.unreachable(attempt, err)
			}
			corruptionHit = true

		case errors.Is(err, transport.ErrTimeout), errors.Is(err, transport.ErrClosed):

		default:
			return codec.Reply{}, err
		}

		last = err
		s.log.Debug().
			Err(err).
			Int("attempt", attempt).
			Uint16("address", req.Address).
			Msg("exchange failed")
	}

	return codec.Reply{}, s.unreachable(s.cfg.Retries, last)
}

// exchange performs one encode/exchange/decode round.
func (s *Session) exchange(ctx context.Context, req codec.Request) (codec.Reply, error) {
	s.tid++
	req.Transaction = s.tid

	s.state.Store(int32(Exchanging))
	start := time.Now()

	var reply codec.Reply
	resp, err := s.adapter.Exchange(ctx, s.framing.Encode(req), s.cfg.Timeout)
	if err == nil {
		reply, err = s.framing.Decode(resp, req)
	}

	s.rec.Exchange(outcome(err), time.Since(start))

	if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil || s.closed.Load() {
		_ = s.adapter.Close()
		s.state.Store(int32(Disconnected))
	} else {
		s.state.Store(int32(Ready))
	}
	return reply, err
}

func (s *Session) unreachable(attempts int, cause error) error {
	s.log.Warn().Err(cause).Int("attempts", attempts).Msg("device unreachable")
	return fmt.Errorf("%w after %d attempts: %w", ErrDeviceUnreachable, attempts, cause)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
