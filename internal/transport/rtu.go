// internal/transport/rtu.go
package transport

import (
	"io"
)

const rtuMaxSize = 256

// readRTUFrame reads exactly one RTU reply from a byte stream.
// RTU has no length header, so the size is derived from the function code.
func readRTUFrame(r io.Reader) ([]byte, error) {
	var buf [rtuMaxSize]byte

	// slave(1) fc(1) first data byte(1)
	if _, err := io.ReadFull(r, buf[:3]); err != nil {
		return nil, err
	}

	fc := buf[1]
	total := 3
	switch {
	case fc&0x80 != 0:
		total = 5 // slave fc code crc(2)
	case fc == 0x03 || fc == 0x04:
		total = 3 + int(buf[2]) + 2
	case fc == 0x05 || fc == 0x06 || fc == 0x0F || fc == 0x10:
		total = 8 // slave fc addr(2) value(2) crc(2)
	}
	if total > rtuMaxSize {
		total = rtuMaxSize
	}

	if total > 3 {
		if _, err := io.ReadFull(r, buf[3:total]); err != nil {
			return nil, err
		}
	}

	out := make([]byte, total)
	copy(out, buf[:total])
	return out, nil
}
