// Command hwcp-server serves HWCP requests against the hardware of one
// module.
//
// Usage:
//
//	hwcp-server [flags]
//
// Flags:
//
//	-config string        YAML configuration file (default: built-in simulation)
//	-listen string        Listen address, overrides the config file
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Capture protocol events to this .hlog file
//
// Examples:
//
//	# Simulated hardware on the default port
//	hwcp-server
//
//	# Real hardware with TLS, metrics and mDNS as configured
//	hwcp-server -config /etc/hwcp/zcu102.yaml
//
//	# Capture everything for hwcp-log
//	hwcp-server -config bench.yaml -log-level debug -protocol-log bench.hlog
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hwcp-protocol/hwcp-go/internal/config"
	"github.com/hwcp-protocol/hwcp-go/pkg/discovery"
	"github.com/hwcp-protocol/hwcp-go/pkg/interaction"
	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/version"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

var (
	configPath  string
	listen      string
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file (default: built-in simulation)")
	flag.StringVar(&listen, "listen", "", "Listen address, overrides the config file")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "Capture protocol events to this .hlog file")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("HWCP server", "module", cfg.Module, "version", version.Software, "protocol", version.Protocol)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// loadConfig reads the config file (or the defaults) and applies the flag
// overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if protocolLog != "" {
		cfg.Log.ProtocolLog = protocolLog
	}
	return cfg, cfg.Validate()
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	mem, bus, err := cfg.Hardware.Build()
	if err != nil {
		return err
	}

	plog, closeLog, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := interaction.NewServer(interaction.ServerConfig{
		Module:         cfg.Module,
		Memory:         mem,
		Bus:            bus,
		PageSizes:      cfg.Hardware.PageSizes(),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit:      cfg.RateLimit.Limit(),
		RateBurst:      cfg.RateLimit.Burst,
		Metrics:        interaction.NewMetrics(reg),
		Logger:         plog,
		Log:            logger,
		OnNotify: func(m wire.Message) {
			logger.Info("notification", "command", m.Command(), "access", m.Access(), "request_id", m.RequestID())
		},
	})

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		if tlsConfig, err = transport.ServerTLSConfig(cfg.TLS.Files()); err != nil {
			return err
		}
	}

	srv, err := transport.NewServer(transport.ServerConfig{
		Address:        cfg.Listen,
		TLS:            tlsConfig,
		MaxMessageSize: cfg.MaxMessageSize,
		MaxConnections: cfg.MaxConnections,
		Handler:        handler.ServeConn,
		Logger:         plog,
		Log:            logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	if cfg.Metrics.Address != "" {
		stopMetrics, err := serveMetrics(cfg.Metrics, reg, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	if cfg.MDNS.Enabled {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: cfg.MDNS.Interface, Log: logger})
		info := &discovery.ServerInfo{
			Instance: cfg.MDNS.Instance,
			Module:   cfg.Module,
			Port:     listenPort(srv.Addr()),
			TLS:      tlsConfig != nil,
			Targets:  cfg.Hardware.Targets(),
		}
		if err := adv.Advertise(ctx, info); err != nil {
			logger.Warn("mDNS advertising failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down", "connections", srv.ConnectionCount())
	return nil
}

// protocolLogger returns the protocol event sink: the capture file when
// configured, plus the operational log at debug level.
func protocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.Log.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("protocol events dropped", "count", n)
			}
			fl.Close()
		}
		logger.Info("capturing protocol events", "path", cfg.Log.ProtocolLog)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}

// serveMetrics exposes reg over HTTP and returns a function stopping the
// endpoint.
func serveMetrics(cfg config.Metrics, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", ln.Addr().String(), "path", cfg.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}, nil
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}
