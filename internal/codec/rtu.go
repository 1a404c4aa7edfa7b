// internal/codec/rtu.go
package codec

import "fmt"

// RTU is the serial line framing: slave(1) pdu(n) crc(2, little-endian).
// RTU-over-TCP uses it unchanged.
type RTU struct{}

func (RTU) Encode(req Request) []byte {
	adu := append([]byte{req.SlaveID}, pdu(req)...)
	sum := CRC16(adu)
	return append(adu, byte(sum), byte(sum>>8))
}

func (RTU) Decode(adu []byte, req Request) (Reply, error) {
	n := len(adu)
	// slave(1) + fc(1) + exception code(1) + crc(2) is the shortest valid reply.
	if n < 5 {
		return Reply{}, fmt.Errorf("%w: rtu length %d", ErrMalformedFrame, n)
	}

	got := uint16(adu[n-2]) | uint16(adu[n-1])<<8
	if want := CRC16(adu[:n-2]); got != want {
		return Reply{}, fmt.Errorf("%w: crc got=0x%04X want=0x%04X", ErrChecksumMismatch, got, want)
	}

	if adu[0] != req.SlaveID {
		return Reply{}, fmt.Errorf("%w: slave id got=%d want=%d", ErrAddressMismatch, adu[0], req.SlaveID)
	}

	return decodePDU(adu[1:n-2], req)
}

// CRC16 computes the Modbus RTU checksum (poly 0xA001, init 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
