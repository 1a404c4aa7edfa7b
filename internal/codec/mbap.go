// internal/codec/mbap.go
package codec

import (
	"encoding/binary"
	"fmt"
)

const mbapHeaderSize = 7

// MBAP is the Modbus TCP framing:
//
//	TID(2) PID(2=0) LEN(2) UID(1) PDU(n)
type MBAP struct{}

func (MBAP) Encode(req Request) []byte {
	p := pdu(req)

	adu := make([]byte, mbapHeaderSize+len(p))
	binary.BigEndian.PutUint16(adu[0:2], req.Transaction)
	binary.BigEndian.PutUint16(adu[2:4], 0)
	binary.BigEndian.PutUint16(adu[4:6], uint16(1+len(p)))
	adu[6] = req.SlaveID
	copy(adu[mbapHeaderSize:], p)

	return adu
}

func (MBAP) Decode(adu []byte, req Request) (Reply, error) {
	if len(adu) < mbapHeaderSize+2 {
		return Reply{}, fmt.Errorf("%w: mbap length %d", ErrMalformedFrame, len(adu))
	}

	tid := binary.BigEndian.Uint16(adu[0:2])
	if tid != req.Transaction {
		return Reply{}, fmt.Errorf("%w: transaction id got=%d want=%d", ErrMalformedFrame, tid, req.Transaction)
	}
	if pid := binary.BigEndian.Uint16(adu[2:4]); pid != 0 {
		return Reply{}, fmt.Errorf("%w: protocol id got=%d want=0", ErrMalformedFrame, pid)
	}
	if length := int(binary.BigEndian.Uint16(adu[4:6])); length != len(adu)-6 {
		return Reply{}, fmt.Errorf("%w: header length %d, frame carries %d", ErrMalformedFrame, length, len(adu)-6)
	}
	if adu[6] != req.SlaveID {
		return Reply{}, fmt.Errorf("%w: unit id got=%d want=%d", ErrAddressMismatch, adu[6], req.SlaveID)
	}

	return decodePDU(adu[mbapHeaderSize:], req)
}
