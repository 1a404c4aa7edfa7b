// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// EndpointClient is a single TCP connection to one sink endpoint.
// It serializes requests because it mutates SlaveId per write.
// The connection is dialed on first use and again after any failure.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	log     zerolog.Logger
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("writer modbus: timeout must be > 0")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if cfg.Logger.GetLevel() <= zerolog.DebugLevel {
		h.Logger = log.New(cfg.Logger, "", 0)
	}

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
		log:     cfg.Logger.With().Str("endpoint", cfg.Endpoint).Logger(),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes regs as holding registers starting at addr (FC 16).
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	if _, err := c.client.WriteMultipleRegisters(addr, qty, payload); err != nil {
		// drop the socket so the next write redials
		_ = c.handler.Close()
		c.log.Debug().Err(err).Uint16("addr", addr).Msg("sink write failed")
		return err
	}
	return nil
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
