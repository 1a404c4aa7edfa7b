// internal/poller/poller_test.go
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
)

// fakeSession serves register values from a map and logs every exchange.
type fakeSession struct {
	mu       sync.Mutex
	values   map[uint16]uint16
	readErr  map[uint16]error
	writeErr error
	onRead   func(addr uint16)

	reads  []uint16
	writes []uint16
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		values: map[uint16]uint16{
			0x05: register.PowerOn,
			0x06: register.FanLow,
			0x07: 30,
			0x0A: 25,
			0x0D: 1200,
			0x0E: 1150,
			0x0F: register.BypassAuto,
			0x10: 0,
			0x11: 0xFFEC, // -20
			0x12: 21,
			0x13: 0x0001,
			0x14: register.CirculationHeatExchange,
		},
		readErr: map[uint16]error{},
	}
}

func (f *fakeSession) Read(_ context.Context, spec register.Spec) (uint16, error) {
	f.mu.Lock()
	f.reads = append(f.reads, spec.Address)
	hook := f.onRead
	f.mu.Unlock()

	if hook != nil {
		hook(spec.Address)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[spec.Address]; err != nil {
		return 0, err
	}
	return f.values[spec.Address], nil
}

func (f *fakeSession) Write(_ context.Context, spec register.Spec, value uint16) (session.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, spec.Address)
	if f.writeErr != nil {
		return session.Ack{}, f.writeErr
	}
	f.values[spec.Address] = value
	return session.Ack{Address: spec.Address, Value: value}, nil
}

func (f *fakeSession) set(addr, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[addr] = value
}

func (f *fakeSession) fail(addr uint16, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr[addr] = err
}

func (f *fakeSession) exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads) + len(f.writes)
}

func newPoller(t *testing.T, model register.Model, sess Session) *Poller {
	t.Helper()
	p, err := New(Config{Device: "hall", Model: model}, sess, zerolog.Nop(), nil)
	assert.NilError(t, err)
	t.Cleanup(p.Stop)
	return p
}

var unreachable = fmt.Errorf("read power: %w", session.ErrDeviceUnreachable)

// ---- construction ----

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Model: register.ModelFull}, newFakeSession(), zerolog.Nop(), nil)
	assert.ErrorContains(t, err, "device name required")

	_, err = New(Config{Device: "x", Model: "pro"}, newFakeSession(), zerolog.Nop(), nil)
	assert.ErrorContains(t, err, "unknown model")

	_, err = New(Config{Device: "x", Model: register.ModelFull}, nil, zerolog.Nop(), nil)
	assert.ErrorContains(t, err, "session is nil")
}

func TestInitialSnapshot(t *testing.T) {
	p := newPoller(t, register.ModelBasic, newFakeSession())
	snap := p.Snapshot()

	assert.Equal(t, len(snap.Slots), len(register.All()))
	for _, sl := range snap.Slots {
		want := SlotUnavailable
		if sl.Spec.Name == register.Power || sl.Spec.Name == register.FanSpeed {
			want = SlotStale
		}
		assert.Equal(t, sl.Kind, want, sl.Spec.Name)
		assert.Assert(t, !sl.HasValue)
	}
	assert.Assert(t, snap.LastPoll.IsZero())
}

// ---- polling ----

func TestUnsupportedRegistersNeverPolled(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)

	for i := 0; i < 3; i++ {
		res := p.PollOnce(context.Background())
		assert.NilError(t, res.Err)
	}

	for _, addr := range f.reads {
		assert.Assert(t, addr == 0x05 || addr == 0x06, "polled 0x%02X", addr)
	}
	assert.Equal(t, len(f.reads), 6)

	snap := p.Snapshot()
	for _, sl := range snap.Slots {
		if !sl.Spec.SupportedBy(register.ModelBasic) {
			assert.Equal(t, sl.Kind, SlotUnavailable, sl.Spec.Name)
		}
	}
}

func TestPollOnceDecodes(t *testing.T) {
	f := newFakeSession()
	f.set(0x10, 0x0088) // eeprom + supply fan
	f.set(0x13, 0x0101) // running + unknown bit 8
	p := newPoller(t, register.ModelFull, f)

	res := p.PollOnce(context.Background())
	assert.NilError(t, res.Err)
	assert.Equal(t, res.Failed, 0)
	assert.Equal(t, res.Device, "hall")
	assert.Assert(t, !res.Snapshot.LastPoll.IsZero())

	out, ok := res.Snapshot.Current(register.OutdoorTemperature)
	assert.Assert(t, ok)
	assert.Equal(t, out.Number, -20)

	fan, _ := res.Snapshot.Current(register.FanSpeed)
	assert.Equal(t, fan.State, "low")

	ab, _ := res.Snapshot.Current(register.AbnormalStatus)
	assert.DeepEqual(t, ab.Flags, []string{"eeprom_error", "supply_fan_error"})

	sys, _ := res.Snapshot.Current(register.SystemStatus)
	assert.Assert(t, sys.Has("running"))
	assert.Equal(t, sys.Unknown, uint16(0x0100))
}

func TestUnreachableGoesStaleThenError(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)

	p.PollOnce(context.Background())
	good, _ := p.Snapshot().Slot(register.Power)
	assert.Equal(t, good.Kind, SlotValue)

	f.fail(0x05, unreachable)

	for cycle := 1; cycle <= 2; cycle++ {
		res := p.PollOnce(context.Background())
		assert.ErrorIs(t, res.Err, session.ErrDeviceUnreachable)
		assert.Equal(t, res.Failed, 1)

		sl, _ := p.Snapshot().Slot(register.Power)
		assert.Equal(t, sl.Kind, SlotStale, "cycle %d", cycle)
		assert.Assert(t, sl.HasValue)
		assert.Equal(t, sl.Value.State, "on")
		assert.Equal(t, sl.LastSuccess, good.LastSuccess)
	}

	p.PollOnce(context.Background())
	sl, _ := p.Snapshot().Slot(register.Power)
	assert.Equal(t, sl.Kind, SlotError)
	assert.ErrorIs(t, sl.Err, session.ErrDeviceUnreachable)

	// unaffected register keeps its value
	fan, _ := p.Snapshot().Slot(register.FanSpeed)
	assert.Equal(t, fan.Kind, SlotValue)

	// recovery
	f.fail(0x05, nil)
	p.PollOnce(context.Background())
	sl, _ = p.Snapshot().Slot(register.Power)
	assert.Equal(t, sl.Kind, SlotValue)
	assert.Equal(t, sl.Failures, 0)
}

func TestDeviceExceptionIsErrorImmediately(t *testing.T) {
	f := newFakeSession()
	f.fail(0x06, &codec.DeviceException{Function: 0x03, Code: codec.ExceptionIllegalDataAddress})
	p := newPoller(t, register.ModelBasic, f)

	p.PollOnce(context.Background())
	sl, _ := p.Snapshot().Slot(register.FanSpeed)
	assert.Equal(t, sl.Kind, SlotError)
	assert.Equal(t, sl.Failures, 1)
}

func TestCancelledCycleLeavesSlots(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)
	p.PollOnce(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.fail(0x05, context.Canceled)

	res := p.PollOnce(ctx)
	assert.ErrorIs(t, res.Err, context.Canceled)
	sl, _ := p.Snapshot().Slot(register.Power)
	assert.Equal(t, sl.Kind, SlotValue)
}

// ---- writes ----

func TestOptimisticWrite(t *testing.T) {
	for _, level := range []uint16{register.FanLow, register.FanMedium, register.FanHigh} {
		f := newFakeSession()
		p := newPoller(t, register.ModelBasic, f)

		ack, err := p.SubmitWrite(context.Background(), register.FanSpeed, level)
		assert.NilError(t, err)
		assert.Equal(t, ack.Value, level)

		// no poll has run yet
		assert.Equal(t, len(f.reads), 0)
		v, ok := p.Snapshot().Current(register.FanSpeed)
		assert.Assert(t, ok)
		assert.Equal(t, v.Raw, level)
	}
}

func TestInvalidWritesNeverReachTheWire(t *testing.T) {
	cases := []struct {
		name  string
		model register.Model
		reg   string
		value uint16
		want  error
	}{
		{"fan speed 4", register.ModelFull, register.FanSpeed, 4, register.ErrInvalidValue},
		{"fan speed 0", register.ModelFull, register.FanSpeed, 0, register.ErrInvalidValue},
		{"power 2", register.ModelFull, register.Power, 2, register.ErrInvalidValue},
		{"read only", register.ModelFull, register.SystemStatus, 1, register.ErrNotWritable},
		{"unknown", register.ModelFull, "humidity", 1, register.ErrUnknownRegister},
		{"unsupported", register.ModelBasic, register.BypassMode, register.BypassAuto, register.ErrUnsupportedRegister},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeSession()
			p := newPoller(t, tc.model, f)

			_, err := p.SubmitWrite(context.Background(), tc.reg, tc.value)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, f.exchanges(), 0)
		})
	}
}

func TestModeWriteRequiresPowerOn(t *testing.T) {
	f := newFakeSession()
	f.set(0x05, register.PowerOff)
	p := newPoller(t, register.ModelFull, f)

	// power unknown before the first poll
	_, err := p.SubmitWrite(context.Background(), register.BypassMode, register.BypassActive)
	assert.ErrorIs(t, err, ErrRequiresPowerOn)

	p.PollOnce(context.Background())
	_, err = p.SubmitWrite(context.Background(), register.InternalCirculation, register.CirculationInternal)
	assert.ErrorIs(t, err, ErrRequiresPowerOn)
	assert.Equal(t, len(f.writes), 0)

	_, err = p.SubmitWrite(context.Background(), register.Power, register.PowerOn)
	assert.NilError(t, err)

	_, err = p.SubmitWrite(context.Background(), register.BypassMode, register.BypassActive)
	assert.NilError(t, err)

	v, _ := p.Snapshot().Current(register.BypassMode)
	assert.Equal(t, v.State, "bypass")
}

func TestFailedWriteKeepsSnapshot(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)
	p.PollOnce(context.Background())

	f.writeErr = fmt.Errorf("write fan_speed: %w", session.ErrDeviceUnreachable)

	_, err := p.SubmitWrite(context.Background(), register.FanSpeed, register.FanHigh)
	assert.ErrorIs(t, err, session.ErrDeviceUnreachable)

	v, _ := p.Snapshot().Current(register.FanSpeed)
	assert.Equal(t, v.State, "low")
}

func TestInFlightReadDoesNotUndoWrite(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)

	reading := make(chan struct{})
	resume := make(chan struct{})
	f.onRead = func(addr uint16) {
		if addr == 0x06 {
			close(reading)
			<-resume
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.PollOnce(context.Background())
	}()
	<-reading

	// device still answers low to the read already on the wire
	f.mu.Lock()
	f.onRead = nil
	f.mu.Unlock()

	_, err := p.SubmitWrite(context.Background(), register.FanSpeed, register.FanHigh)
	assert.NilError(t, err)
	f.set(0x06, register.FanLow)

	close(resume)
	<-done

	v, _ := p.Snapshot().Current(register.FanSpeed)
	assert.Equal(t, v.State, "high")
}

// ---- scheduling ----

func TestStartPollingRestart(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)

	assert.NilError(t, p.StartPolling(10*time.Millisecond))
	first := <-p.Results()
	assert.NilError(t, first.Err)

	// same interval keeps the running loop
	assert.NilError(t, p.StartPolling(10*time.Millisecond))
	assert.Equal(t, p.Interval(), 10*time.Millisecond)

	assert.NilError(t, p.StartPolling(25*time.Millisecond))
	assert.Equal(t, p.Interval(), 25*time.Millisecond)

	select {
	case res := <-p.Results():
		assert.Equal(t, res.Device, "hall")
	case <-time.After(time.Second):
		t.Fatal("no poll result after restart")
	}

	p.Stop()
	_, open := <-p.Results()
	for open {
		_, open = <-p.Results()
	}
	assert.ErrorIs(t, p.StartPolling(time.Second), ErrStopped)
	assert.ErrorContains(t, (&Poller{}).StartPolling(0), "interval")
}

func TestSnapshotJSON(t *testing.T) {
	f := newFakeSession()
	p := newPoller(t, register.ModelBasic, f)
	p.PollOnce(context.Background())

	b, err := json.Marshal(p.Snapshot())
	assert.NilError(t, err)

	s := string(b)
	assert.Check(t, is.Contains(s, `"device":"hall"`))
	assert.Check(t, is.Contains(s, `"name":"power","address":5,"access":"rw"`))
	assert.Check(t, is.Contains(s, `"state":"unavailable"`))
	assert.Check(t, is.Contains(s, `"state":"on"`))
}
