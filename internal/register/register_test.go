package register

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestWireMapAddresses(t *testing.T) {
	want := map[string]uint16{
		Power:              0x05,
		FanSpeed:           0x06,
		SupplyAirPercent:   0x07,
		ExhaustAirPercent:  0x0A,
		SupplyFanSpeed:     0x0D,
		ExhaustFanSpeed:    0x0E,
		AbnormalStatus:     0x10,
		OutdoorTemperature: 0x11,
		IndoorTemperature:  0x12,
		SystemStatus:       0x13,
	}
	for name, addr := range want {
		assert.Equal(t, Lookup(name).Address, addr, name)
	}
	assert.Assert(t, Lookup(Power).Writable())
	assert.Assert(t, Lookup(FanSpeed).Writable())
	assert.Assert(t, !Lookup(SystemStatus).Writable())
}

func TestLookupUnknownPanics(t *testing.T) {
	defer func() {
		assert.Assert(t, recover() != nil)
	}()
	Lookup("humidity")
}

func TestForModelOrderedAndFiltered(t *testing.T) {
	basic := ForModel(ModelBasic)
	assert.Equal(t, len(basic), 2)
	assert.Equal(t, basic[0].Name, Power)
	assert.Equal(t, basic[1].Name, FanSpeed)

	full := ForModel(ModelFull)
	assert.Equal(t, len(full), len(All()))
	for i := 1; i < len(full); i++ {
		assert.Assert(t, full[i-1].Address < full[i].Address)
	}

	assert.DeepEqual(t, Lookup(OutdoorTemperature).Models(), []Model{ModelFull})
	assert.DeepEqual(t, Lookup(Power).Models(), []Model{ModelFull, ModelBasic})
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("basic")
	assert.NilError(t, err)
	assert.Equal(t, m, ModelBasic)

	_, err = ParseModel("deluxe")
	assert.ErrorContains(t, err, "unknown model")
}

func TestDecodeEnumUnknownCode(t *testing.T) {
	v := Decode(Lookup(FanSpeed), FanMedium)
	assert.Equal(t, v.Kind, KindState)
	assert.Equal(t, v.State, "medium")

	v = Decode(Lookup(FanSpeed), 9)
	assert.Equal(t, v.Kind, KindUnknownCode)
	assert.Equal(t, v.Raw, uint16(9))
	assert.Equal(t, v.String(), "unknown(0x0009)")
}

func TestDecodeSignedTemperature(t *testing.T) {
	v := Decode(Lookup(OutdoorTemperature), 0xFFFB)
	assert.Equal(t, v.Kind, KindNumber)
	assert.Equal(t, v.Number, -5)

	v = Decode(Lookup(IndoorTemperature), 22)
	assert.Equal(t, v.Number, 22)
}

func TestDecodeBitfieldKeepsUnknownBits(t *testing.T) {
	v := Decode(Lookup(AbnormalStatus), 0x0088|0x0001)
	assert.Equal(t, v.Kind, KindFlags)
	assert.DeepEqual(t, v.Flags, []string{"eeprom_error", "supply_fan_error"})
	assert.Equal(t, v.Unknown, uint16(0x0001))
	assert.Assert(t, v.Has("supply_fan_error"))
	assert.Assert(t, is.Contains(v.String(), "unknown(0x0001)"))

	v = Decode(Lookup(SystemStatus), 0)
	assert.Equal(t, len(v.Flags), 0)
	assert.Equal(t, v.String(), "none")
}

func TestCheckWrite(t *testing.T) {
	assert.NilError(t, Lookup(FanSpeed).CheckWrite(FanHigh))
	assert.ErrorIs(t, Lookup(FanSpeed).CheckWrite(4), ErrInvalidValue)
	assert.ErrorIs(t, Lookup(Power).CheckWrite(2), ErrInvalidValue)
	assert.ErrorIs(t, Lookup(OutdoorTemperature).CheckWrite(1), ErrNotWritable)
}

func TestParseSymbol(t *testing.T) {
	raw, err := Lookup(FanSpeed).Parse(" High ")
	assert.NilError(t, err)
	assert.Equal(t, raw, FanHigh)

	raw, err = Lookup(BypassMode).Parse("auto")
	assert.NilError(t, err)
	assert.Equal(t, raw, BypassAuto)

	_, err = Lookup(FanSpeed).Parse("turbo")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Lookup(SupplyFanSpeed).Parse("1")
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.DeepEqual(t, Lookup(FanSpeed).Symbols(), []string{"low", "medium", "high"})
}

func TestValueJSON(t *testing.T) {
	b, err := Decode(Lookup(OutdoorTemperature), 0).MarshalJSON()
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"kind":"number","raw":0,"number":0}`)

	b, err = Decode(Lookup(Power), PowerOn).MarshalJSON()
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"kind":"state","raw":1,"state":"on"}`)
}
