// internal/status/encode.go
package status

// Encode converts a Snapshot into a full device status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot, deviceName string) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotConnection] = s.Connection
	regs[SlotStaleRegisters] = s.StaleRegisters
	regs[SlotErrorRegisters] = s.ErrorRegisters
	regs[SlotUnavailableRegisters] = s.UnavailableRegisters

	// Slots 7..10 are RESERVED and left as zero

	copy(regs[SlotDeviceNameStart:SlotDeviceNameEnd+1], EncodeName(deviceName))
	return regs
}

// Slots lists the live slots of s by index, in block order.
func Slots(s Snapshot) [][2]uint16 {
	return [][2]uint16{
		{SlotHealthCode, s.Health},
		{SlotLastErrorCode, s.LastErrorCode},
		{SlotSecondsInError, s.SecondsInError},
		{SlotConnection, s.Connection},
		{SlotStaleRegisters, s.StaleRegisters},
		{SlotErrorRegisters, s.ErrorRegisters},
		{SlotUnavailableRegisters, s.UnavailableRegisters},
	}
}

// EncodeName packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
