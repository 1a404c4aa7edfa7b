// internal/metrics/metrics.go
//
// Package metrics exposes device telemetry as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
)

const namespace = "erv"

// Metrics holds every collector. Create one per registry.
type Metrics struct {
	exchanges  *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	pollCycles *prometheus.HistogramVec
	pollFailed *prometheus.CounterVec
	writes     *prometheus.CounterVec
	health     *prometheus.GaugeVec
	values     *prometheus.GaugeVec
	slots      *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Duration of single request/response exchanges by outcome.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"device", "outcome"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_retries_total",
			Help:      "Exchanges repeated after a transient failure.",
		}, []string{"device"}),

		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Transport reopen attempts after the channel was lost.",
		}, []string{"device"}),

		pollCycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of complete poll cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),

		pollFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_read_failures_total",
			Help:      "Register reads that failed during poll cycles.",
		}, []string{"device"}),

		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write intents by register and result.",
		}, []string{"device", "register", "result"}),

		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_health",
			Help:      "Device health code (0 unknown, 1 ok, 2 error, 3 stale, 4 disabled).",
		}, []string{"device"}),

		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Decoded register value; raw for enums and bitfields.",
		}, []string{"device", "register"}),

		slots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_state",
			Help:      "1 for the current classification of each register slot.",
		}, []string{"device", "register", "state"}),
	}

	reg.MustRegister(
		m.exchanges,
		m.retries,
		m.reconnects,
		m.pollCycles,
		m.pollFailed,
		m.writes,
		m.health,
		m.values,
		m.slots,
	)
	return m
}

// Device returns a recorder bound to one device. It satisfies both
// session.Recorder and poller.Recorder.
func (m *Metrics) Device(name string) *DeviceRecorder {
	return &DeviceRecorder{m: m, device: name}
}

// SetHealth publishes a health code.
func (m *Metrics) SetHealth(device string, code uint16) {
	m.health.WithLabelValues(device).Set(float64(code))
}

// UpdateSnapshot publishes register values and slot classifications.
func (m *Metrics) UpdateSnapshot(s poller.Snapshot) {
	kinds := []poller.SlotKind{poller.SlotValue, poller.SlotStale, poller.SlotError, poller.SlotUnavailable}

	for _, sl := range s.Slots {
		name := sl.Spec.Name
		for _, k := range kinds {
			v := 0.0
			if sl.Kind == k {
				v = 1
			}
			m.slots.WithLabelValues(s.Device, name, k.String()).Set(v)
		}

		if sl.Kind == poller.SlotValue {
			m.values.WithLabelValues(s.Device, name).Set(gaugeValue(sl.Value))
		}
	}
}

func gaugeValue(v register.Value) float64 {
	if v.Kind == register.KindNumber {
		return float64(v.Number)
	}
	return float64(v.Raw)
}

// ---- per device ----

type DeviceRecorder struct {
	m      *Metrics
	device string
}

func (r *DeviceRecorder) Exchange(outcome string, elapsed time.Duration) {
	r.m.exchanges.WithLabelValues(r.device, outcome).Observe(elapsed.Seconds())
}

func (r *DeviceRecorder) Retry() {
	r.m.retries.WithLabelValues(r.device).Inc()
}

func (r *DeviceRecorder) Reconnect() {
	r.m.reconnects.WithLabelValues(r.device).Inc()
}

func (r *DeviceRecorder) PollCycle(elapsed time.Duration, failed int) {
	r.m.pollCycles.WithLabelValues(r.device).Observe(elapsed.Seconds())
	if failed > 0 {
		r.m.pollFailed.WithLabelValues(r.device).Add(float64(failed))
	}
}

func (r *DeviceRecorder) Write(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.m.writes.WithLabelValues(r.device, name, result).Inc()
}
