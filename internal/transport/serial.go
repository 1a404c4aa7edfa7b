// internal/transport/serial.go
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/codec"
)

// openSerial is swapped in tests.
var openSerial = serial.Open

// serialAdapter speaks RTU over an RS485 line.
// The port applies the configured timeout to every read.
type serialAdapter struct {
	cfg serial.Config
	log zerolog.Logger

	mu   sync.Mutex
	port serial.Port
}

func newSerialAdapter(cfg Config) *serialAdapter {
	return &serialAdapter{
		cfg: serial.Config{
			Address:  cfg.Serial.Port,
			BaudRate: cfg.Serial.Baud,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
			Timeout:  cfg.Timeout,
		},
		log: cfg.Logger,
	}
}

func (a *serialAdapter) Framing() codec.Framing { return codec.RTU{} }

func (a *serialAdapter) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classifyOpen(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != nil {
		return nil
	}

	cfg := a.cfg
	p, err := openSerial(&cfg)
	if err != nil {
		return classifyOpen(err)
	}
	a.port = p

	a.log.Debug().
		Str("port", a.cfg.Address).
		Int("baud", a.cfg.BaudRate).
		Msg("serial port opened")
	return nil
}

func (a *serialAdapter) Exchange(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	a.mu.Lock()
	p := a.port
	a.mu.Unlock()

	if p == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.log.Trace().Hex("tx", req).Msg("serial exchange")

	if err := writeAll(p, req); err != nil {
		return nil, a.fail(err)
	}
	resp, err := readRTUFrame(p)
	if err != nil {
		return nil, a.fail(err)
	}

	a.log.Trace().Hex("rx", resp).Msg("serial exchange")
	return resp, nil
}

// fail classifies err and releases the port on fatal errors.
func (a *serialAdapter) fail(err error) error {
	err = classify(err)
	if isClosed(err) {
		_ = a.Close()
	}
	return err
}

func (a *serialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}
