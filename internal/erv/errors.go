// internal/erv/errors.go
package erv

import (
	"context"
	"errors"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/transport"
)

// Stable error codes exported to the status block. Device exceptions
// use CodeDeviceException | exception code.
const (
	CodeNone    uint16 = 0x0000
	CodeGeneric uint16 = 0x0001

	CodeConnection        uint16 = 0x0010
	CodeConnectionRefused uint16 = 0x0011

	CodeTimeout uint16 = 0x0020
	CodeClosed  uint16 = 0x0021

	CodeMalformedFrame   uint16 = 0x0030
	CodeChecksumMismatch uint16 = 0x0031
	CodeAddressMismatch  uint16 = 0x0032

	CodeDeviceUnreachable uint16 = 0x0040
	CodeSessionClosed     uint16 = 0x0041
	CodePollerStopped     uint16 = 0x0042

	CodeUnknownRegister     uint16 = 0x0050
	CodeNotWritable         uint16 = 0x0051
	CodeInvalidValue        uint16 = 0x0052
	CodeUnsupportedRegister uint16 = 0x0053
	CodeRequiresPowerOn     uint16 = 0x0054

	CodeCanceled         uint16 = 0x0060
	CodeDeadlineExceeded uint16 = 0x0061

	CodeDeviceException uint16 = 0x0100
)

// most specific first: ErrDeviceUnreachable wraps its transient cause
var codes = []struct {
	err  error
	code uint16
}{
	{session.ErrDeviceUnreachable, CodeDeviceUnreachable},
	{session.ErrSessionClosed, CodeSessionClosed},
	{poller.ErrStopped, CodePollerStopped},
	{poller.ErrRequiresPowerOn, CodeRequiresPowerOn},
	{register.ErrUnknownRegister, CodeUnknownRegister},
	{register.ErrNotWritable, CodeNotWritable},
	{register.ErrInvalidValue, CodeInvalidValue},
	{register.ErrUnsupportedRegister, CodeUnsupportedRegister},
	{transport.ErrConnectionRefused, CodeConnectionRefused},
	{transport.ErrConnection, CodeConnection},
	{transport.ErrTimeout, CodeTimeout},
	{transport.ErrClosed, CodeClosed},
	{codec.ErrChecksumMismatch, CodeChecksumMismatch},
	{codec.ErrAddressMismatch, CodeAddressMismatch},
	{codec.ErrMalformedFrame, CodeMalformedFrame},
	{context.Canceled, CodeCanceled},
	{context.DeadlineExceeded, CodeDeadlineExceeded},
}

// ErrorCode maps err onto its stable numeric code. Unclassified errors
// return CodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	var exc *codec.DeviceException
	if errors.As(err, &exc) {
		return CodeDeviceException | uint16(exc.Code)
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeGeneric
}
