// internal/session/state.go
package session

import (
	"errors"
	"time"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/transport"
)

// State of the connection owned by a session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Ready
	Exchanging
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Exchanging:
		return "exchanging"
	}
	return "unknown"
}

// Recorder receives exchange telemetry.
type Recorder interface {
	Exchange(outcome string, elapsed time.Duration)
	Retry()
	Reconnect()
}

type nopRecorder struct{}

func (nopRecorder) Exchange(string, time.Duration) {}
func (nopRecorder) Retry()                         {}
func (nopRecorder) Reconnect()                     {}

// Exchange outcomes reported to the Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
	OutcomeCorrupt   = "corrupt"
	OutcomeException = "exception"
	OutcomeError     = "error"
)

func outcome(err error) string {
	var exc *codec.DeviceException
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, transport.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, transport.ErrClosed):
		return OutcomeClosed
	case codec.IsCorruption(err):
		return OutcomeCorrupt
	case errors.As(err, &exc):
		return OutcomeException
	}
	return OutcomeError
}
