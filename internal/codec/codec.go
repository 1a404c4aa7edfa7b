// internal/codec/codec.go
//
// Package codec frames single-register Modbus requests and validates replies.
// It performs no I/O and keeps no state.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Function codes used against the ERV register map.
const (
	FuncReadHoldingRegisters byte = 0x03
	FuncWriteSingleRegister  byte = 0x06

	exceptionFlag byte = 0x80
)

var (
	ErrMalformedFrame   = errors.New("codec: malformed frame")
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
	ErrAddressMismatch  = errors.New("codec: address mismatch")
)

// Request is one single-register operation.
type Request struct {
	SlaveID  uint8
	Function byte
	Address  uint16
	Value    uint16 // written value (FC 6); ignored for reads

	// Transaction is the MBAP transaction id. RTU framing ignores it.
	Transaction uint16
}

// ReadRequest reads one holding register.
func ReadRequest(slaveID uint8, addr uint16) Request {
	return Request{SlaveID: slaveID, Function: FuncReadHoldingRegisters, Address: addr}
}

// WriteRequest writes one holding register.
func WriteRequest(slaveID uint8, addr, value uint16) Request {
	return Request{SlaveID: slaveID, Function: FuncWriteSingleRegister, Address: addr, Value: value}
}

// IsWrite reports whether the request modifies the device.
func (r Request) IsWrite() bool { return r.Function == FuncWriteSingleRegister }

// Reply is a validated device answer.
// For reads Value is the register content; for writes it is the echoed value.
type Reply struct {
	Address uint16
	Value   uint16
}

// Framing turns requests into ADUs and validates ADUs against their request.
type Framing interface {
	Encode(req Request) []byte
	Decode(adu []byte, req Request) (Reply, error)
}

// pdu returns function code + data for a request.
func pdu(req Request) []byte {
	out := make([]byte, 5)
	out[0] = req.Function
	binary.BigEndian.PutUint16(out[1:3], req.Address)
	if req.IsWrite() {
		binary.BigEndian.PutUint16(out[3:5], req.Value)
	} else {
		binary.BigEndian.PutUint16(out[3:5], 1)
	}
	return out
}

// decodePDU validates function code + data of a reply.
func decodePDU(p []byte, req Request) (Reply, error) {
	if len(p) < 2 {
		return Reply{}, fmt.Errorf("%w: pdu length %d", ErrMalformedFrame, len(p))
	}

	fc := p[0]
	if fc == req.Function|exceptionFlag {
		if len(p) != 2 {
			return Reply{}, fmt.Errorf("%w: exception pdu length %d", ErrMalformedFrame, len(p))
		}
		return Reply{}, &DeviceException{Function: req.Function, Code: p[1]}
	}
	if fc != req.Function {
		return Reply{}, fmt.Errorf("%w: function got=0x%02X want=0x%02X", ErrMalformedFrame, fc, req.Function)
	}

	data := p[1:]
	switch req.Function {
	case FuncReadHoldingRegisters:
		// byte count(1) + register(2)
		if len(data) != 3 || data[0] != 2 {
			return Reply{}, fmt.Errorf("%w: read payload % x", ErrMalformedFrame, data)
		}
		return Reply{Address: req.Address, Value: binary.BigEndian.Uint16(data[1:3])}, nil

	case FuncWriteSingleRegister:
		// address(2) + value(2)
		if len(data) != 4 {
			return Reply{}, fmt.Errorf("%w: write payload % x", ErrMalformedFrame, data)
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		val := binary.BigEndian.Uint16(data[2:4])
		if addr != req.Address {
			return Reply{}, fmt.Errorf("%w: echoed address got=0x%04X want=0x%04X", ErrAddressMismatch, addr, req.Address)
		}
		if val != req.Value {
			return Reply{}, fmt.Errorf("%w: echoed value got=%d want=%d", ErrMalformedFrame, val, req.Value)
		}
		return Reply{Address: addr, Value: val}, nil
	}

	return Reply{}, fmt.Errorf("%w: unsupported function 0x%02X", ErrMalformedFrame, req.Function)
}

// IsCorruption reports whether err means the reply could not be trusted.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrAddressMismatch)
}
