// internal/erv/device.go
//
// Package erv is the operation surface a host application drives:
// connect a ventilator, command it, read its cached state, shut it down.
package erv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/config"
	"github.com/tamzrod/erv-controller/internal/metrics"
	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/transport"
)

// newAdapter is replaced in tests.
var newAdapter = transport.New

// Device is one connected ventilator.
type Device struct {
	ID    uuid.UUID
	Name  string
	Model register.Model

	interval time.Duration
	sess     *session.Session
	poll     *poller.Poller
	log      zerolog.Logger

	shutdown sync.Once
}

// Connect builds the transport, session and poller for cfg and opens the
// channel. Polling is not started; call StartPolling. m may be nil.
func Connect(ctx context.Context, cfg config.DeviceConfig, logger zerolog.Logger, m *metrics.Metrics) (*Device, error) {
	cfg = cfg.Clone()
	config.NormalizeDevice(&cfg)
	if err := config.ValidateDevice(cfg); err != nil {
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	model, _ := register.ParseModel(cfg.Model)
	kind, _ := transport.ParseKind(cfg.Transport)

	id := uuid.New()
	log := logger.With().
		Str("device", cfg.Name).
		Str("session", id.String()).
		Logger()

	tc := transport.Config{
		Kind:    kind,
		Timeout: cfg.Timeout(),
		Logger:  log,
	}
	if s := cfg.Serial; s != nil {
		tc.Serial = transport.SerialConfig{
			Port:     s.Port,
			Baud:     s.Baud,
			DataBits: s.DataBits,
			Parity:   s.Parity,
			StopBits: s.StopBits,
		}
	}
	if n := cfg.Network; n != nil {
		tc.Network = transport.NetworkConfig{Host: n.Host, Port: n.Port}
	}

	adapter, err := newAdapter(tc)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	var (
		srec session.Recorder
		prec poller.Recorder
	)
	if m != nil {
		rec := m.Device(cfg.Name)
		srec, prec = rec, rec
	}

	sess, err := session.New(session.Config{
		SlaveID: uint8(cfg.SlaveID),
		Timeout: cfg.Timeout(),
		Retries: cfg.Retries,
		Backoff: cfg.Backoff(),
	}, adapter, log, srec)
	if err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	if err := sess.Open(ctx); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	p, err := poller.New(poller.Config{
		Device: cfg.Name,
		Model:  model,
	}, sess, log, prec)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("device %q: %w", cfg.Name, err)
	}

	log.Info().
		Str("transport", string(kind)).
		Str("model", string(model)).
		Int("slave_id", cfg.SlaveID).
		Msg("device connected")

	return &Device{
		ID:       id,
		Name:     cfg.Name,
		Model:    model,
		interval: cfg.PollInterval(),
		sess:     sess,
		poll:     p,
		log:      log,
	}, nil
}

// StartPolling starts periodic reads at the configured interval,
// or at interval when it is positive.
func (d *Device) StartPolling(interval time.Duration) error {
	if interval <= 0 {
		interval = d.interval
	}
	return d.poll.StartPolling(interval)
}

// Results streams poll cycle outcomes until Shutdown.
func (d *Device) Results() <-chan poller.PollResult { return d.poll.Results() }

// CurrentSnapshot returns the cached state without touching the network.
func (d *Device) CurrentSnapshot() poller.Snapshot { return d.poll.Snapshot() }

// State reports the session state.
func (d *Device) State() session.State { return d.sess.State() }

// PowerSet switches the unit on or off.
func (d *Device) PowerSet(ctx context.Context, on bool) (session.Ack, error) {
	v := register.PowerOff
	if on {
		v = register.PowerOn
	}
	return d.poll.SubmitWrite(ctx, register.Power, v)
}

// FanSpeedSet accepts "low", "medium" or "high".
func (d *Device) FanSpeedSet(ctx context.Context, level string) (session.Ack, error) {
	return d.SetAttribute(ctx, register.FanSpeed, level)
}

// FanPercentSet drives the airflow from 0 to 100. Zero switches the unit
// off. Other values program both fan percentages, select the programmable
// fan level and switch the unit on unless it is known to be on.
func (d *Device) FanPercentSet(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: fan percent %d out of range 0..100", register.ErrInvalidValue, percent)
	}
	if percent == 0 {
		_, err := d.PowerSet(ctx, false)
		return err
	}
	if !register.Lookup(register.SupplyAirPercent).SupportedBy(d.Model) {
		return fmt.Errorf("%w: fan percent on %s", register.ErrUnsupportedRegister, d.Model)
	}

	supply, exhaust := register.FanPercentages(percent)
	steps := []struct {
		name  string
		value uint16
	}{
		{register.SupplyAirPercent, supply},
		{register.ExhaustAirPercent, exhaust},
		{register.FanSpeed, register.FanLow},
	}
	for _, st := range steps {
		if _, err := d.poll.SubmitWrite(ctx, st.name, st.value); err != nil {
			return err
		}
	}

	if v, ok := d.poll.Snapshot().Current(register.Power); ok && v.Raw == register.PowerOn {
		return nil
	}
	_, err := d.PowerSet(ctx, true)
	return err
}

// FanPercent derives the airflow from the cached exhaust percentage.
// ok is false until that register has been read or written.
func (d *Device) FanPercent() (percent int, ok bool) {
	snap := d.poll.Snapshot()
	if v, on := snap.Current(register.Power); on && v.Raw == register.PowerOff {
		return 0, true
	}
	v, ok := snap.Current(register.ExhaustAirPercent)
	if !ok {
		return 0, false
	}
	return register.UserPercent(v.Raw), true
}

// SetAttribute writes a symbolic value to a read-write register.
func (d *Device) SetAttribute(ctx context.Context, name, symbol string) (session.Ack, error) {
	spec, ok := register.Find(name)
	if !ok {
		return session.Ack{}, fmt.Errorf("%w: %q", register.ErrUnknownRegister, name)
	}
	if !spec.Writable() {
		return session.Ack{}, fmt.Errorf("%w: %s", register.ErrNotWritable, name)
	}
	if !spec.SupportedBy(d.Model) {
		return session.Ack{}, fmt.Errorf("%w: %s on %s", register.ErrUnsupportedRegister, name, d.Model)
	}
	v, err := spec.Parse(symbol)
	if err != nil {
		return session.Ack{}, err
	}
	return d.poll.SubmitWrite(ctx, name, v)
}

// Shutdown stops polling and releases the transport. It is idempotent.
func (d *Device) Shutdown() error {
	var err error
	d.shutdown.Do(func() {
		d.poll.Stop()
		err = d.sess.Close()
		d.log.Info().Msg("device shut down")
	})
	return err
}
