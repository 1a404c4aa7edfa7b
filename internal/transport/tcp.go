// internal/transport/tcp.go
package transport

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/codec"
)

// tcpAdapter speaks MBAP over TCP using goburrow's handler as the byte transporter.
// Framing and validation stay in codec.
type tcpAdapter struct {
	address string
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	handler  *modbus.TCPClientHandler
	inflight atomic.Int32
}

func newTCPAdapter(cfg Config) *tcpAdapter {
	return &tcpAdapter{
		address: cfg.Network.Address(),
		timeout: cfg.Timeout,
		log:     cfg.Logger,
	}
}

func (a *tcpAdapter) Framing() codec.Framing { return codec.MBAP{} }

func (a *tcpAdapter) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classifyOpen(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handler != nil {
		return nil
	}

	h := modbus.NewTCPClientHandler(a.address)
	h.Timeout = a.timeout
	// Connection lifetime belongs to the session, not to an idle timer.
	h.IdleTimeout = 0
	if a.log.GetLevel() <= zerolog.DebugLevel {
		h.Logger = log.New(a.log, "", 0)
	}

	if err := h.Connect(); err != nil {
		return classifyOpen(err)
	}
	a.handler = h

	a.log.Debug().Str("address", a.address).Msg("tcp connection opened")
	return nil
}

func (a *tcpAdapter) Exchange(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	if h == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.Timeout = timeout

	// goburrow holds its lock for the whole Send, so Close cannot interrupt
	// it. Send runs aside; cancellation detaches the handler and the socket
	// is closed once Send gives up.
	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)

	a.inflight.Add(1)
	go func() {
		resp, err := h.Send(req)
		a.inflight.Add(-1)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := classify(r.err)
			if isClosed(err) {
				_ = a.Close()
			}
			return nil, err
		}
		return r.resp, nil

	case <-ctx.Done():
		_ = a.Close()
		return nil, ctx.Err()
	}
}

// Close releases the connection. With an exchange in flight the handler is
// detached at once and closed in the background.
func (a *tcpAdapter) Close() error {
	a.mu.Lock()
	h := a.handler
	a.handler = nil
	a.mu.Unlock()

	if h == nil {
		return nil
	}
	if a.inflight.Load() > 0 {
		go func() { _ = h.Close() }()
		return nil
	}
	return h.Close()
}
