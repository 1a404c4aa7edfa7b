// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/transport"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if len(cfg.Devices) == 0 {
		return errors.New("at least one device required")
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}

	names := make(map[string]bool)
	for _, d := range cfg.Devices {
		if d.Name == "" {
			return errors.New("device name required")
		}
		if names[d.Name] {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		names[d.Name] = true

		if err := ValidateDevice(d); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}

	if err := validateStatus(cfg); err != nil {
		return err
	}
	return validateMirrors(cfg)
}

// ValidateDevice checks one normalized device in isolation.
// Cross-device rules (names, status slots, mirrors) live in Validate.
func ValidateDevice(d DeviceConfig) error {
	kind, err := transport.ParseKind(d.Transport)
	if err != nil {
		return err
	}

	// exactly one parameter set, matching the transport
	switch kind {
	case transport.Serial:
		if d.Serial == nil || d.Network != nil {
			return errors.New("serial transport requires a serial block and no network block")
		}
		if err := validateSerial(*d.Serial); err != nil {
			return err
		}

	case transport.TCP, transport.RTUOverTCP:
		if d.Network == nil || d.Serial != nil {
			return fmt.Errorf("%s transport requires a network block and no serial block", kind)
		}
		if d.Network.Host == "" {
			return errors.New("network.host required")
		}
		if d.Network.Port < 1 || d.Network.Port > 65535 {
			return fmt.Errorf("network.port %d out of range", d.Network.Port)
		}
	}

	if d.SlaveID < 1 || d.SlaveID > 247 {
		return fmt.Errorf("slave_id %d out of range 1..247", d.SlaveID)
	}
	if _, err := register.ParseModel(d.Model); err != nil {
		return err
	}
	if d.TimeoutMs <= 0 {
		return errors.New("timeout_ms must be > 0")
	}
	if d.Retries < 1 {
		return errors.New("retries must be >= 1")
	}
	if d.BackoffMs < 0 {
		return errors.New("backoff_ms must be >= 0")
	}
	if d.Poll.IntervalMs <= 0 {
		return errors.New("poll.interval_ms must be > 0")
	}
	return nil
}

func validateSerial(s SerialConfig) error {
	if s.Port == "" {
		return errors.New("serial.port required")
	}
	if s.Baud <= 0 {
		return fmt.Errorf("serial.baud %d invalid", s.Baud)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("serial.data_bits %d out of range 5..8", s.DataBits)
	}
	if s.StopBits < 1 || s.StopBits > 2 {
		return fmt.Errorf("serial.stop_bits %d out of range 1..2", s.StopBits)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity must be N, E or O, got %q", s.Parity)
	}
	return nil
}

// ------------------------------------------------------------
// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
// ------------------------------------------------------------

func validateStatus(cfg *Config) error {
	// key = unit_id | slot
	owner := make(map[string]string)

	for _, d := range cfg.Devices {
		if d.Status == nil {
			continue
		}

		if cfg.StatusMemory.Endpoint == "" {
			return fmt.Errorf("device %q: status is set but status_memory.endpoint is empty", d.Name)
		}

		// device name is packed into the block as ASCII
		for i := 0; i < len(d.Name); i++ {
			if d.Name[i] > 0x7F {
				return fmt.Errorf("device %q: name must contain ASCII characters only when status is set", d.Name)
			}
		}

		key := fmt.Sprintf("%d|%d", d.Status.UnitID, d.Status.Slot)
		if prev, exists := owner[key]; exists {
			return fmt.Errorf(
				"status slot collision: endpoint=%s unit_id=%d slot=%d used by devices %q and %q",
				cfg.StatusMemory.Endpoint,
				d.Status.UnitID,
				d.Status.Slot,
				prev,
				d.Name,
			)
		}
		owner[key] = d.Name
	}
	return nil
}

// ------------------------------------------------------------
// REGISTER MIRROR GEOMETRY VALIDATION
// ------------------------------------------------------------

func validateMirrors(cfg *Config) error {
	type span struct {
		start  uint32
		end    uint32
		device string
	}

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	for _, d := range cfg.Devices {
		m := d.Mirror
		if m == nil {
			continue
		}
		if m.Endpoint == "" {
			return fmt.Errorf("device %q: mirror.endpoint required", d.Name)
		}

		regs := register.ForModel(register.Model(d.Model))
		if len(regs) == 0 {
			continue
		}

		start := uint32(m.Offset) + uint32(regs[0].Address)
		end := uint32(m.Offset) + uint32(regs[len(regs)-1].Address)
		if end > 0xFFFF {
			return fmt.Errorf("device %q: mirror offset %d exceeds the register space", d.Name, m.Offset)
		}

		key := fmt.Sprintf("%s|%d", m.Endpoint, m.UnitID)
		for _, s := range spans[key] {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"mirror overlap: endpoint=%s unit_id=%d range=%d-%d of %q overlaps %q range=%d-%d",
					m.Endpoint,
					m.UnitID,
					start,
					end,
					d.Name,
					s.device,
					s.start,
					s.end,
				)
			}
		}
		spans[key] = append(spans[key], span{start: start, end: end, device: d.Name})
	}
	return nil
}
