// Package config loads the YAML configuration of hwcp-server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/hwcp-protocol/hwcp-go/pkg/hw"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// Hardware backends.
const (
	BackendSim    = "sim"
	BackendDevMem = "devmem"
)

// MaxMessageSizeLimit is the largest accepted max_message_size.
const MaxMessageSizeLimit = 16 << 20

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration file.
type Config struct {
	Module         string    `yaml:"module"`
	Listen         string    `yaml:"listen"`
	MaxMessageSize uint32    `yaml:"max_message_size"`
	MaxConnections int       `yaml:"max_connections"`
	TLS            TLS       `yaml:"tls"`
	Log            Log       `yaml:"log"`
	Metrics        Metrics   `yaml:"metrics"`
	RateLimit      RateLimit `yaml:"rate_limit"`
	MDNS           MDNS      `yaml:"mdns"`
	Hardware       Hardware  `yaml:"hardware"`
}

// TLS holds certificate paths. TLS is enabled when Cert is set.
type TLS struct {
	Cert              string `yaml:"cert"`
	Key               string `yaml:"key"`
	CA                string `yaml:"ca"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// Enabled reports whether TLS is configured.
func (t TLS) Enabled() bool { return t.Cert != "" }

// Files converts t for transport.ServerTLSConfig.
func (t TLS) Files() transport.TLSFiles {
	return transport.TLSFiles{
		CertFile:          t.Cert,
		KeyFile:           t.Key,
		CAFile:            t.CA,
		RequireClientCert: t.RequireClientCert,
	}
}

// Log configures operational and protocol logging.
type Log struct {
	Level string `yaml:"level"`

	// ProtocolLog is the path of a CBOR capture file. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`
}

// SlogLevel returns the parsed Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}

// Metrics configures the Prometheus endpoint. Empty Address disables it.
type Metrics struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// RateLimit limits requests per connection. Zero disables the limit.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Limit returns the limit for the rate limiter.
func (r RateLimit) Limit() rate.Limit { return rate.Limit(r.RequestsPerSecond) }

// MDNS configures service advertising.
type MDNS struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// Hardware selects and describes the backend.
type Hardware struct {
	Backend   string      `yaml:"backend"`
	MemDevice string      `yaml:"mem_device"`
	I2CDevice string      `yaml:"i2c_device"`
	Regions   []Region    `yaml:"regions"`
	Devices   []SimDevice `yaml:"sim_devices"`
}

// Region is a memory window of one access target. With the sim backend
// each region becomes a memory bank; PageSize applies to paged targets.
type Region struct {
	Target   string `yaml:"target"`
	Base     uint32 `yaml:"base"`
	Size     uint32 `yaml:"size"`
	PageSize uint32 `yaml:"page_size"`
}

// SimDevice is a simulated I2C peripheral.
type SimDevice struct {
	Bus       uint32            `yaml:"bus"`
	Slave     uint32            `yaml:"slave"`
	Registers map[uint32]uint32 `yaml:"registers"`
	ReadOnly  []uint32          `yaml:"read_only"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Module:         "hwcp",
		Listen:         fmt.Sprintf(":%d", transport.DefaultPort),
		MaxMessageSize: transport.DefaultMaxMessageSize,
		Log:            Log{Level: "info"},
		Metrics:        Metrics{Path: "/metrics"},
		Hardware: Hardware{
			Backend:   BackendSim,
			MemDevice: hw.DefaultMemDevice,
			I2CDevice: hw.DefaultBusPattern,
		},
	}
}

// Load reads and validates the file at path. Fields the file omits keep
// their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values and combinations.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.Module) == "" {
		fail("module is required")
	}
	if c.Listen == "" {
		fail("listen is required")
	}
	if c.MaxMessageSize == 0 || c.MaxMessageSize > MaxMessageSizeLimit {
		fail("max_message_size %d outside 1..%d", c.MaxMessageSize, MaxMessageSizeLimit)
	}
	if c.MaxConnections < 0 {
		fail("max_connections %d is negative", c.MaxConnections)
	}

	if c.TLS.Enabled() != (c.TLS.Key != "") {
		fail("tls cert and key must be set together")
	}
	if c.TLS.RequireClientCert && c.TLS.CA == "" {
		fail("tls require_client_cert needs ca")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		fail("rate_limit values must not be negative")
	}

	errs = append(errs, c.Hardware.validate()...)
	return errors.Join(errs...)
}

func (h *Hardware) validate() []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch h.Backend {
	case BackendSim:
	case BackendDevMem:
		if len(h.Devices) > 0 {
			fail("sim_devices need backend %q", BackendSim)
		}
	default:
		fail("unknown hardware backend %q", h.Backend)
	}

	for i, r := range h.Regions {
		target, err := wire.ParseAccessTarget(r.Target)
		switch {
		case err != nil:
			fail("regions[%d]: %v", i, err)
			continue
		case target == wire.AccessI2C || target == wire.AccessUnsupported:
			fail("regions[%d]: %s is not memory mapped", i, target)
		case r.Size == 0:
			fail("regions[%d]: size is zero", i)
		case uint64(r.Base)+uint64(r.Size) > 1<<32:
			fail("regions[%d]: %#x+%#x exceeds the 32-bit address space", i, r.Base, r.Size)
		}
		if r.PageSize != 0 && !target.IsPagedMemory() {
			fail("regions[%d]: page_size on non-paged target %s", i, target)
		}
	}

	seen := make(map[[2]uint32]bool)
	for i, d := range h.Devices {
		key := [2]uint32{d.Bus, d.Slave}
		if seen[key] {
			fail("sim_devices[%d]: duplicate bus %d slave %#x", i, d.Bus, d.Slave)
		}
		seen[key] = true
	}
	return errs
}

// PageSizes returns the configured page size per paged target.
func (h *Hardware) PageSizes() map[wire.AccessTarget]uint32 {
	sizes := make(map[wire.AccessTarget]uint32)
	for _, r := range h.Regions {
		target, err := wire.ParseAccessTarget(r.Target)
		if err != nil || r.PageSize == 0 || !target.IsPagedMemory() {
			continue
		}
		sizes[target] = r.PageSize
	}
	return sizes
}

// Targets returns the access targets the configuration provides a backend
// for, in protocol order.
func (h *Hardware) Targets() []wire.AccessTarget {
	have := map[wire.AccessTarget]bool{}
	if h.Backend == BackendDevMem || len(h.Devices) > 0 {
		have[wire.AccessI2C] = true
	}
	for _, r := range h.Regions {
		if t, err := wire.ParseAccessTarget(r.Target); err == nil {
			have[t] = true
		}
	}
	var out []wire.AccessTarget
	for t := wire.AccessI2C; t <= wire.AccessQSPI; t++ {
		if have[t] {
			out = append(out, t)
		}
	}
	return out
}

// Build creates the memory mapper and bus provider of the backend.
func (h *Hardware) Build() (hw.Mapper, hw.BusProvider, error) {
	switch h.Backend {
	case BackendDevMem:
		return &hw.DevMemMapper{Path: h.MemDevice}, &hw.DevBus{Pattern: h.I2CDevice}, nil
	case BackendSim:
		mem := hw.NewMemMapper()
		for i, r := range h.Regions {
			if err := mem.AddBank(r.Base, r.Size); err != nil {
				return nil, nil, fmt.Errorf("regions[%d]: %w", i, err)
			}
		}
		bus := hw.NewSimBus()
		for _, d := range h.Devices {
			dev := bus.AddDevice(d.Bus, d.Slave)
			for reg, v := range d.Registers {
				dev.Set(reg, v)
			}
			for _, reg := range d.ReadOnly {
				dev.SetReadOnly(reg)
			}
		}
		return mem, bus, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown hardware backend %q", ErrInvalid, h.Backend)
	}
}
