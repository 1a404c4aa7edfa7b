// internal/register/table.go
package register

import "fmt"

// Register names.
const (
	Power               = "power"
	FanSpeed            = "fan_speed"
	SupplyAirPercent    = "supply_air_percent"
	ExhaustAirPercent   = "exhaust_air_percent"
	SupplyFanSpeed      = "supply_fan_speed"
	ExhaustFanSpeed     = "exhaust_fan_speed"
	BypassMode          = "bypass_mode"
	AbnormalStatus      = "abnormal_status"
	OutdoorTemperature  = "outdoor_temperature"
	IndoorTemperature   = "indoor_return_temperature"
	SystemStatus        = "system_status"
	InternalCirculation = "internal_circulation"
)

// Raw values of the read-write registers.
const (
	PowerOff uint16 = 0x00
	PowerOn  uint16 = 0x01

	// FanLow is also the programmable slot driven by the airflow percentages.
	FanLow    uint16 = 0x01
	FanMedium uint16 = 0x02
	FanHigh   uint16 = 0x03

	BypassHeatExchange uint16 = 0x00
	BypassActive       uint16 = 0x01
	BypassAuto         uint16 = 0x02

	CirculationHeatExchange uint16 = 0x00
	CirculationInternal     uint16 = 0x01
)

// Model identifies a device variant.
type Model string

const (
	// ModelFull exposes the complete register set.
	ModelFull Model = "full"
	// ModelBasic only answers power and fan speed reliably.
	ModelBasic Model = "basic"
)

// Models returns all known models.
func Models() []Model { return []Model{ModelFull, ModelBasic} }

// ParseModel validates a model identifier.
func ParseModel(s string) (Model, error) {
	for _, m := range Models() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("register: unknown model %q", s)
}

var table = []Spec{
	{
		Name:     Power,
		Address:  0x05,
		Access:   ReadWrite,
		Encoding: Enum,
		States:   map[uint16]string{PowerOff: "off", PowerOn: "on"},
	},
	{
		Name:     FanSpeed,
		Address:  0x06,
		Access:   ReadWrite,
		Encoding: Enum,
		States:   map[uint16]string{FanLow: "low", FanMedium: "medium", FanHigh: "high"},
	},
	{
		Name:     SupplyAirPercent,
		Address:  0x07,
		Access:   ReadWrite,
		Encoding: UInt16,
		Unit:     "%",
		Max:      100,
	},
	{
		Name:     ExhaustAirPercent,
		Address:  0x0A,
		Access:   ReadWrite,
		Encoding: UInt16,
		Unit:     "%",
		Max:      100,
	},
	{
		Name:     SupplyFanSpeed,
		Address:  0x0D,
		Access:   ReadOnly,
		Encoding: UInt16,
		Unit:     "rpm",
	},
	{
		Name:     ExhaustFanSpeed,
		Address:  0x0E,
		Access:   ReadOnly,
		Encoding: UInt16,
		Unit:     "rpm",
	},
	{
		Name:     BypassMode,
		Address:  0x0F,
		Access:   ReadWrite,
		Encoding: Enum,
		States: map[uint16]string{
			BypassHeatExchange: "heat_exchange",
			BypassActive:       "bypass",
			BypassAuto:         "auto",
		},
	},
	{
		Name:     AbnormalStatus,
		Address:  0x10,
		Access:   ReadOnly,
		Encoding: Bitfield,
		Flags: []Flag{
			{Mask: 0x08, Name: "eeprom_error"},
			{Mask: 0x10, Name: "indoor_temp_error"},
			{Mask: 0x20, Name: "outdoor_temp_error"},
			{Mask: 0x40, Name: "exhaust_fan_error"},
			{Mask: 0x80, Name: "supply_fan_error"},
		},
	},
	{
		Name:     OutdoorTemperature,
		Address:  0x11,
		Access:   ReadOnly,
		Encoding: Int16,
		Unit:     "°C",
	},
	{
		Name:     IndoorTemperature,
		Address:  0x12,
		Access:   ReadOnly,
		Encoding: Int16,
		Unit:     "°C",
	},
	{
		Name:     SystemStatus,
		Address:  0x13,
		Access:   ReadOnly,
		Encoding: Bitfield,
		Flags: []Flag{
			{Mask: 0x0001, Name: "running"},
			{Mask: 0x0010, Name: "bypass"},
			{Mask: 0x0020, Name: "internal_circulation"},
			{Mask: 0x0040, Name: "low_temp_protection"},
		},
	},
	{
		Name:     InternalCirculation,
		Address:  0x14,
		Access:   ReadWrite,
		Encoding: Enum,
		States: map[uint16]string{
			CirculationHeatExchange: "heat_exchange",
			CirculationInternal:     "internal",
		},
	},
}

// availability is consulted once per session to derive the active register set.
var availability = map[Model][]string{
	ModelFull: {
		Power,
		FanSpeed,
		SupplyAirPercent,
		ExhaustAirPercent,
		SupplyFanSpeed,
		ExhaustFanSpeed,
		BypassMode,
		AbnormalStatus,
		OutdoorTemperature,
		IndoorTemperature,
		SystemStatus,
		InternalCirculation,
	},
	ModelBasic: {
		Power,
		FanSpeed,
	},
}
