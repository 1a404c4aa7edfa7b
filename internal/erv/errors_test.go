// internal/erv/errors_test.go
package erv

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/transport"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want uint16
	}{
		{nil, CodeNone},
		{errors.New("boom"), CodeGeneric},
		{fmt.Errorf("read power: %w", transport.ErrTimeout), CodeTimeout},
		{fmt.Errorf("%w after 3 attempts: %w", session.ErrDeviceUnreachable, transport.ErrTimeout), CodeDeviceUnreachable},
		{fmt.Errorf("%w: crc", codec.ErrChecksumMismatch), CodeChecksumMismatch},
		{&codec.DeviceException{Function: 0x06, Code: codec.ExceptionIllegalDataAddress}, 0x0102},
		{fmt.Errorf("write: %w", register.ErrInvalidValue), CodeInvalidValue},
		{context.Canceled, CodeCanceled},
	}

	for _, tc := range cases {
		assert.Equal(t, ErrorCode(tc.err), tc.want, "%v", tc.err)
	}
}
