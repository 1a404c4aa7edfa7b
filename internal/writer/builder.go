// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/erv-controller/internal/config"
	wmodbus "github.com/tamzrod/erv-controller/internal/writer/modbus"
)

// BuildPlan converts one device config into a write plan.
// Assumes config has already passed collision validation.
func BuildPlan(d cfg.DeviceConfig, sm cfg.StatusMemoryConfig) (Plan, error) {
	if d.Name == "" {
		return Plan{}, errors.New("writer: device name required")
	}

	plan := Plan{Device: d.Name}

	if m := d.Mirror; m != nil {
		plan.Mirror = &MirrorPlan{
			Endpoint: m.Endpoint,
			UnitID:   m.UnitID,
			Offset:   m.Offset,
			Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
		}
	}

	if s := d.Status; s != nil {
		if sm.Endpoint == "" {
			return Plan{}, errors.New("writer: status enabled without status memory endpoint")
		}
		plan.Status = &StatusPlan{
			Endpoint:   sm.Endpoint,
			UnitID:     s.UnitID,
			BaseSlot:   s.Slot,
			DeviceName: d.Name,
			Timeout:    time.Duration(sm.TimeoutMs) * time.Millisecond,
		}
	}

	return plan, nil
}

// endpointTimeouts gives each unique endpoint of the plan its own timeout.
// An endpoint serving both sinks gets the longer of the two.
func endpointTimeouts(plan Plan) map[string]time.Duration {
	out := map[string]time.Duration{}
	add := func(endpoint string, t time.Duration) {
		if cur, ok := out[endpoint]; !ok || t > cur {
			out[endpoint] = t
		}
	}
	if plan.Mirror != nil {
		add(plan.Mirror.Endpoint, plan.Mirror.Timeout)
	}
	if plan.Status != nil {
		add(plan.Status.Endpoint, plan.Status.Timeout)
	}
	return out
}

// BuildEndpointClients creates one TCP client per unique endpoint of the plan.
func BuildEndpointClients(plan Plan, logger zerolog.Logger) (map[string]endpointClient, func() error, error) {
	clients := make(map[string]endpointClient)
	var closers []func() error

	for endpoint, timeout := range endpointTimeouts(plan) {
		c, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: endpoint,
			Timeout:  timeout,
			Logger:   logger,
		})
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	return clients, closeAll, nil
}
