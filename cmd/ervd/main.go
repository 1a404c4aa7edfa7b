// cmd/ervd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/api"
	"github.com/tamzrod/erv-controller/internal/config"
	"github.com/tamzrod/erv-controller/internal/erv"
	"github.com/tamzrod/erv-controller/internal/metrics"
	"github.com/tamzrod/erv-controller/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ervd <config.yaml>")
		os.Exit(2)
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Shared infrastructure
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("ervd"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn().Err(err).Msg("nats disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			}),
		)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect failed")
		}
		logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")
	}

	srv := api.New(cfg.API, reg, logger)

	// --------------------
	// Build per-device pipelines
	// --------------------

	var (
		wg      sync.WaitGroup
		devices []*erv.Device
		closers []func() error
	)

	for _, dc := range cfg.Devices {
		dlog := logger.With().Str("device", dc.Name).Logger()

		dev, err := erv.Connect(ctx, dc, logger, m)
		if err != nil {
			dlog.Error().Err(err).Uint16("code", erv.ErrorCode(err)).Msg("device connect failed, skipping")
			continue
		}
		devices = append(devices, dev)

		// ---- writer plan ----
		plan, err := writer.BuildPlan(dc, cfg.StatusMemory)
		if err != nil {
			dlog.Fatal().Err(err).Msg("writer plan failed")
		}

		clients, closeWriters, err := writer.BuildEndpointClients(plan, dlog)
		if err != nil {
			dlog.Fatal().Err(err).Msg("writer clients failed")
		}
		closers = append(closers, closeWriters)

		p := &pipeline{
			name:    dev.Name,
			src:     dev,
			log:     dlog,
			metrics: m,
		}
		if w := writer.New(plan, clients); w != nil {
			p.sinks = append(p.sinks, w)
		}
		if nc != nil {
			p.sinks = append(p.sinks, writer.NewNATSWriter(nc, cfg.NATS.SubjectPrefix, dev.Name))
		}
		if sw, ok := writer.NewDeviceStatusWriter(plan, clients); ok {
			p.status = sw
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.run()
		}()

		if err := dev.StartPolling(0); err != nil {
			dlog.Fatal().Err(err).Msg("start polling failed")
		}

		srv.Register(api.Entry{ID: dev.ID, Name: dev.Name, Device: dev})
	}

	if len(devices) == 0 {
		logger.Fatal().Msg("no device could be connected")
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error().Err(err).Msg("api server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// --------------------
	// Graceful shutdown
	// --------------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api shutdown")
	}
	for _, dev := range devices {
		if err := dev.Shutdown(); err != nil {
			logger.Warn().Err(err).Str("device", dev.Name).Msg("device shutdown")
		}
	}

	// pipelines write the disabled status before exiting
	wg.Wait()

	for _, fn := range closers {
		_ = fn()
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn().Err(err).Msg("nats drain")
		}
	}
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if c.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}
