// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig          `yaml:"log"`
	API          APIConfig          `yaml:"api"`
	NATS         NATSConfig         `yaml:"nats"`
	StatusMemory StatusMemoryConfig `yaml:"status_memory"`
	Devices      []DeviceConfig     `yaml:"devices"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

type APIConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// NATSConfig enables snapshot publication when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// StatusMemoryConfig is the Modbus server receiving device health blocks.
type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name      string         `yaml:"name"`
	Transport string         `yaml:"transport"` // serial | tcp | rtuovertcp
	Serial    *SerialConfig  `yaml:"serial"`
	Network   *NetworkConfig `yaml:"network"`
	SlaveID   int            `yaml:"slave_id"`
	Model     string         `yaml:"model"` // full | basic

	TimeoutMs int `yaml:"timeout_ms"`
	Retries   int `yaml:"retries"`
	BackoffMs int `yaml:"backoff_ms"`

	Poll PollConfig `yaml:"poll"`

	// Optional sinks
	Status *StatusConfig `yaml:"status"`
	Mirror *MirrorConfig `yaml:"mirror"`
}

// ---- TRANSPORT PARAMETERS ----

type SerialConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"` // N | E | O
	StopBits int    `yaml:"stop_bits"`
}

type NetworkConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- SINKS ----

// StatusConfig places the device health block in the status memory.
type StatusConfig struct {
	UnitID uint8  `yaml:"unit_id"`
	Slot   uint16 `yaml:"slot"`
}

// MirrorConfig copies raw register values to holding registers at offset+address.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Offset    uint16 `yaml:"offset"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Clone returns a copy that shares no pointers with d.
func (d DeviceConfig) Clone() DeviceConfig {
	if d.Serial != nil {
		s := *d.Serial
		d.Serial = &s
	}
	if d.Network != nil {
		n := *d.Network
		d.Network = &n
	}
	if d.Status != nil {
		st := *d.Status
		d.Status = &st
	}
	if d.Mirror != nil {
		m := *d.Mirror
		d.Mirror = &m
	}
	return d
}

func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

func (d DeviceConfig) Backoff() time.Duration {
	return time.Duration(d.BackoffMs) * time.Millisecond
}

func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.Poll.IntervalMs) * time.Millisecond
}

// Load reads a YAML file and applies environment overrides.
// Callers run Normalize and Validate afterwards.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("ERV_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if listen := os.Getenv("ERV_API_LISTEN"); listen != "" {
		c.API.Listen = listen
	}
	if url := os.Getenv("ERV_NATS_URL"); url != "" {
		c.NATS.URL = url
	}
}
