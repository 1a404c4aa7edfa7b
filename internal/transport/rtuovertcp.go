// internal/transport/rtuovertcp.go
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/codec"
)

// rtuOverTCPAdapter carries serial RTU frames over a stream socket,
// as done by RS485-to-Ethernet converters in transparent mode.
type rtuOverTCPAdapter struct {
	address string
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	conn net.Conn
}

func newRTUOverTCPAdapter(cfg Config) *rtuOverTCPAdapter {
	return &rtuOverTCPAdapter{
		address: cfg.Network.Address(),
		timeout: cfg.Timeout,
		log:     cfg.Logger,
	}
}

func (a *rtuOverTCPAdapter) Framing() codec.Framing { return codec.RTU{} }

func (a *rtuOverTCPAdapter) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: a.timeout}
	conn, err := d.DialContext(ctx, "tcp", a.address)
	if err != nil {
		return classifyOpen(err)
	}
	a.conn = conn

	a.log.Debug().Str("address", a.address).Msg("rtu-over-tcp connection opened")
	return nil
}

func (a *rtuOverTCPAdapter) Exchange(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Leftovers of an earlier, partially read reply would shift every frame after it.
	a.drain(conn)

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, a.fail(err)
	}

	a.log.Trace().Hex("tx", req).Msg("rtu-over-tcp exchange")

	if err := writeAll(conn, req); err != nil {
		return nil, a.fail(err)
	}
	resp, err := readRTUFrame(conn)
	if err != nil {
		return nil, a.fail(err)
	}

	a.log.Trace().Hex("rx", resp).Msg("rtu-over-tcp exchange")
	return resp, nil
}

func (a *rtuOverTCPAdapter) drain(conn net.Conn) {
	var buf [rtuMaxSize]byte
	for {
		if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return
		}
		n, err := conn.Read(buf[:])
		if n > 0 {
			a.log.Debug().Int("bytes", n).Msg("discarded stale bytes")
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (a *rtuOverTCPAdapter) fail(err error) error {
	err = classify(err)
	if isClosed(err) {
		_ = a.Close()
	}
	return err
}

func (a *rtuOverTCPAdapter) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
