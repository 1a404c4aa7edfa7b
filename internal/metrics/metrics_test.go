// internal/metrics/metrics_test.go
package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"

	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
)

var (
	_ session.Recorder = (*DeviceRecorder)(nil)
	_ poller.Recorder  = (*DeviceRecorder)(nil)
)

func TestDeviceRecorderCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := m.Device("hall")

	r.Retry()
	r.Retry()
	r.Reconnect()
	r.PollCycle(20*time.Millisecond, 2)
	r.Write(register.FanSpeed, nil)
	r.Write(register.FanSpeed, errors.New("x"))
	r.Exchange(session.OutcomeTimeout, time.Second)

	assert.Equal(t, testutil.ToFloat64(m.retries.WithLabelValues("hall")), 2.0)
	assert.Equal(t, testutil.ToFloat64(m.reconnects.WithLabelValues("hall")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.pollFailed.WithLabelValues("hall")), 2.0)
	assert.Equal(t, testutil.ToFloat64(m.writes.WithLabelValues("hall", register.FanSpeed, "ok")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.writes.WithLabelValues("hall", register.FanSpeed, "error")), 1.0)
	assert.Equal(t, testutil.CollectAndCount(m.exchanges), 1)
}

func TestUpdateSnapshot(t *testing.T) {
	m := New(prometheus.NewRegistry())

	temp := register.Lookup(register.OutdoorTemperature)
	fan := register.Lookup(register.FanSpeed)
	snap := poller.Snapshot{
		Device: "hall",
		Slots: []poller.Slot{
			{Spec: fan, Kind: poller.SlotValue, Value: register.Decode(fan, register.FanHigh)},
			{Spec: temp, Kind: poller.SlotValue, Value: register.Decode(temp, 0xFFEC)},
			{Spec: register.Lookup(register.SystemStatus), Kind: poller.SlotUnavailable},
		},
	}
	m.UpdateSnapshot(snap)
	m.SetHealth("hall", 3)

	assert.Equal(t, testutil.ToFloat64(m.values.WithLabelValues("hall", register.OutdoorTemperature)), -20.0)
	assert.Equal(t, testutil.ToFloat64(m.values.WithLabelValues("hall", register.FanSpeed)), 3.0)
	assert.Equal(t, testutil.ToFloat64(m.slots.WithLabelValues("hall", register.SystemStatus, "unavailable")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.slots.WithLabelValues("hall", register.SystemStatus, "value")), 0.0)
	assert.Equal(t, testutil.ToFloat64(m.health.WithLabelValues("hall")), 3.0)
}
