// internal/transport/transport.go
//
// Package transport owns the byte-level channel to the device.
// Adapters never reconnect on their own; that policy lives in the session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/goburrow/serial"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/codec"
)

// Kind selects the transport variant.
type Kind string

const (
	Serial     Kind = "serial"
	TCP        Kind = "tcp"
	RTUOverTCP Kind = "rtuovertcp"
)

// ParseKind validates a transport kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Serial, TCP, RTUOverTCP:
		return Kind(s), nil
	}
	return "", fmt.Errorf("transport: unknown kind %q", s)
}

var (
	ErrTimeout           = errors.New("transport: timeout")
	ErrClosed            = errors.New("transport: closed")
	ErrConnectionRefused = errors.New("transport: connection refused")
	ErrConnection        = errors.New("transport: connection error")
)

// Adapter performs one request/response exchange at a time.
type Adapter interface {
	Open(ctx context.Context) error
	Exchange(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error)
	Close() error

	// Framing is the wire framing the adapter expects.
	Framing() codec.Framing
}

// SerialConfig holds RS485 line parameters.
type SerialConfig struct {
	Port     string
	Baud     int
	DataBits int
	Parity   string // N, E or O
	StopBits int
}

// NetworkConfig holds a stream socket endpoint.
type NetworkConfig struct {
	Host string
	Port int
}

// Address returns host:port.
func (n NetworkConfig) Address() string {
	return net.JoinHostPort(n.Host, fmt.Sprintf("%d", n.Port))
}

// Config selects and parameterizes an adapter.
// Exactly one of Serial and Network is used, according to Kind.
type Config struct {
	Kind    Kind
	Serial  SerialConfig
	Network NetworkConfig
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New builds an adapter without opening it.
func New(cfg Config) (Adapter, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("transport: timeout must be > 0")
	}

	switch cfg.Kind {
	case Serial:
		if cfg.Serial.Port == "" {
			return nil, errors.New("transport: serial port required")
		}
		return newSerialAdapter(cfg), nil

	case TCP:
		if cfg.Network.Host == "" {
			return nil, errors.New("transport: network host required")
		}
		return newTCPAdapter(cfg), nil

	case RTUOverTCP:
		if cfg.Network.Host == "" {
			return nil, errors.New("transport: network host required")
		}
		return newRTUOverTCPAdapter(cfg), nil
	}

	return nil, fmt.Errorf("transport: unknown kind %q", cfg.Kind)
}

// ---- error classification ----

// classify maps an I/O error onto ErrTimeout or ErrClosed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrClosed) {
		return err
	}
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	// EOF, resets, broken pipes and anything else leave the channel unusable.
	return fmt.Errorf("%w: %v", ErrClosed, err)
}

// classifyOpen maps a setup failure onto ErrConnectionRefused or ErrConnection.
func classifyOpen(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// isClosed reports whether a classified error requires releasing the channel.
func isClosed(err error) bool { return errors.Is(err, ErrClosed) }

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
