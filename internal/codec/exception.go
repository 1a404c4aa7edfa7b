// internal/codec/exception.go
package codec

import "fmt"

// Standard exception codes.
const (
	ExceptionIllegalFunction    byte = 0x01
	ExceptionIllegalDataAddress byte = 0x02
	ExceptionIllegalDataValue   byte = 0x03
	ExceptionDeviceFailure      byte = 0x04
	ExceptionAcknowledge        byte = 0x05
	ExceptionDeviceBusy         byte = 0x06
	ExceptionMemoryParity       byte = 0x08
	ExceptionGatewayPath        byte = 0x0A
	ExceptionGatewayTarget      byte = 0x0B
)

// DeviceException is a protocol-level rejection sent by the device.
type DeviceException struct {
	Function byte
	Code     byte
}

func (e *DeviceException) Error() string {
	var name string
	switch e.Code {
	case ExceptionIllegalFunction:
		name = "illegal function"
	case ExceptionIllegalDataAddress:
		name = "illegal data address"
	case ExceptionIllegalDataValue:
		name = "illegal data value"
	case ExceptionDeviceFailure:
		name = "server device failure"
	case ExceptionAcknowledge:
		name = "acknowledge"
	case ExceptionDeviceBusy:
		name = "server device busy"
	case ExceptionMemoryParity:
		name = "memory parity error"
	case ExceptionGatewayPath:
		name = "gateway path unavailable"
	case ExceptionGatewayTarget:
		name = "gateway target device failed to respond"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("codec: device exception 0x%02X (%s), function 0x%02X", e.Code, name, e.Function)
}
