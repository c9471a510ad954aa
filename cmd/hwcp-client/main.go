// Command hwcp-client sends HWCP requests to a server.
//
// It runs a single command given on the command line, or an interactive
// shell with -i.
//
// Usage:
//
//	hwcp-client [flags] <command> [args...]
//	hwcp-client [flags] -i
//
// Examples:
//
//	# Read two GPIO registers
//	hwcp-client -addr bench:9750 read gpio 0x41200000 0x0 long 2
//
//	# Write a byte to an I2C peripheral and show the read-back value
//	hwcp-client -addr bench:9750 write i2c 1 0x50 0x10 byte 0x7F
//
//	# Find the zcu102 server over mDNS and open a shell
//	hwcp-client -discover -module zcu102 -i
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/hwcp-protocol/hwcp-go/pkg/connection"
	"github.com/hwcp-protocol/hwcp-go/pkg/discovery"
	"github.com/hwcp-protocol/hwcp-go/pkg/interaction"
	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
)

// Config holds the client flags.
type Config struct {
	Addr        string
	Discover    bool
	Module      string
	Interactive bool

	TLS        bool
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Insecure   bool

	Timeout     int
	Retries     int
	LogLevel    string
	ProtocolLog string
}

var config Config

func init() {
	flag.StringVar(&config.Addr, "addr", fmt.Sprintf("localhost:%d", transport.DefaultPort), "Server address (host:port)")
	flag.BoolVar(&config.Discover, "discover", false, "Find the server via mDNS instead of -addr")
	flag.StringVar(&config.Module, "module", "", "Module name to look for with -discover")
	flag.BoolVar(&config.Interactive, "i", false, "Interactive shell")

	flag.BoolVar(&config.TLS, "tls", false, "Connect with TLS")
	flag.StringVar(&config.CAFile, "ca", "", "CA bundle to verify the server")
	flag.StringVar(&config.CertFile, "cert", "", "Client certificate")
	flag.StringVar(&config.KeyFile, "key", "", "Client key")
	flag.StringVar(&config.ServerName, "server-name", "", "Expected server name")
	flag.BoolVar(&config.Insecure, "insecure", false, "Skip server certificate verification (testing only)")

	flag.IntVar(&config.Timeout, "timeout", 2000, "Request timeout in milliseconds")
	flag.IntVar(&config.Retries, "retries", 2, "Retries after a timed out request")
	flag.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Capture protocol events to this .hlog file")
}

func main() {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		fatal(fmt.Errorf("invalid log level %q", config.LogLevel))
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !config.Interactive && flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: hwcp-client [flags] <command> [args...]\n       hwcp-client [flags] -i\n\n%s\n\nFlags:\n", commandHelp)
		flag.PrintDefaults()
		os.Exit(1)
	}
	if config.Timeout < 1 || config.Timeout > 32767 {
		fatal(fmt.Errorf("timeout must be 1-32767 ms, got %d", config.Timeout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func run(ctx context.Context, logger *slog.Logger) error {
	addr := config.Addr
	if config.Discover {
		svc, err := discoverServer(ctx, logger)
		if err != nil {
			return err
		}
		addr = svc.Address()
		config.TLS = config.TLS || svc.TLS
		fmt.Fprintf(os.Stderr, "Found %s (module %s) at %s\n", svc.InstanceName, svc.Module, addr)
	}

	dialCfg := transport.DialConfig{}
	if config.TLS {
		tlsCfg, err := transport.ClientTLSConfig(transport.TLSFiles{
			CertFile:           config.CertFile,
			KeyFile:            config.KeyFile,
			CAFile:             config.CAFile,
			ServerName:         config.ServerName,
			InsecureSkipVerify: config.Insecure,
		})
		if err != nil {
			return err
		}
		dialCfg.TLS = tlsCfg
	}

	// One id for the whole session so redials stay correlated in captures.
	connID := uuid.New().String()
	dialCfg.ConnID = connID
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer fl.Close()
		dialCfg.Logger = fl
	}

	mgr := connection.NewManager(func(ctx context.Context) (connection.Conn, error) {
		c, err := transport.Dial(ctx, addr, dialCfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, connection.ManagerConfig{
		OnStateChange: func(from, to connection.State) {
			logger.Debug("connection state", "from", from, "to", to, "addr", addr)
		},
	})
	defer mgr.Close()

	client := interaction.NewClient(mgr, interaction.ClientConfig{
		Timeout: int16(config.Timeout),
		Retries: config.Retries,
		ConnID:  connID,
		Logger:  dialCfg.Logger,
		Log:     logger,
	})
	exec := &executor{client: client, conn: mgr, out: os.Stdout}

	if !config.Interactive {
		err := exec.Exec(ctx, flag.Args())
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, commandHelp)
		}
		return err
	}

	if err := mgr.Connect(ctx); err != nil {
		return err
	}
	shell, err := NewShell(exec, "hwcp> ", historyFile())
	if err != nil {
		return err
	}
	shell.Run(ctx)
	return nil
}

func discoverServer(ctx context.Context, logger *slog.Logger) (*discovery.Service, error) {
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Log: logger})
	defer browser.Stop()

	ctx, cancel := context.WithTimeout(ctx, discovery.BrowseTimeout)
	defer cancel()
	return browser.Find(ctx, config.Module)
}

// historyFile returns the shell history path, or "" without a home
// directory.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hwcp_history")
}
