// internal/config/normalize.go
package config

import "strings"

// Defaults of the device protocol.
const (
	DefaultSlaveID      = 100
	DefaultBaud         = 9600
	DefaultDataBits     = 8
	DefaultParity       = "N"
	DefaultStopBits     = 1
	DefaultTCPPort      = 502
	DefaultModel        = "full"
	DefaultTimeoutMs    = 1000
	DefaultRetries      = 3
	DefaultBackoffMs    = 100
	DefaultPollInterval = 10000
)

// Normalize fills defaults and canonicalizes spelling.
// It is allowed to mutate configuration.
// It MUST be called before Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8080"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "erv"
	}
	if cfg.StatusMemory.TimeoutMs == 0 {
		cfg.StatusMemory.TimeoutMs = DefaultTimeoutMs
	}

	for i := range cfg.Devices {
		NormalizeDevice(&cfg.Devices[i])
	}
}

// NormalizeDevice fills the defaults of a single device.
func NormalizeDevice(d *DeviceConfig) {
	d.Name = strings.TrimSpace(d.Name)
	d.Transport = strings.ToLower(strings.TrimSpace(d.Transport))
	d.Model = strings.ToLower(strings.TrimSpace(d.Model))

	if d.Model == "" {
		d.Model = DefaultModel
	}
	if d.SlaveID == 0 {
		d.SlaveID = DefaultSlaveID
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Retries == 0 {
		d.Retries = DefaultRetries
	}
	if d.BackoffMs == 0 {
		d.BackoffMs = DefaultBackoffMs
	}
	if d.Poll.IntervalMs == 0 {
		d.Poll.IntervalMs = DefaultPollInterval
	}

	if s := d.Serial; s != nil {
		if s.Baud == 0 {
			s.Baud = DefaultBaud
		}
		if s.DataBits == 0 {
			s.DataBits = DefaultDataBits
		}
		if s.StopBits == 0 {
			s.StopBits = DefaultStopBits
		}
		s.Parity = strings.ToUpper(strings.TrimSpace(s.Parity))
		if s.Parity == "" {
			s.Parity = DefaultParity
		}
	}

	if n := d.Network; n != nil && n.Port == 0 {
		n.Port = DefaultTCPPort
	}

	if m := d.Mirror; m != nil && m.TimeoutMs == 0 {
		m.TimeoutMs = DefaultTimeoutMs
	}
}
