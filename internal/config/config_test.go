package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hwcp-protocol/hwcp-go/pkg/hw"
	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

const sample = `
module: zcu102
listen: 127.0.0.1:9750
max_connections: 4
log:
  level: debug
  protocol_log: /tmp/hwcp.hlog
metrics:
  address: :9100
rate_limit:
  requests_per_second: 50
  burst: 5
mdns:
  enabled: true
  instance: bench
hardware:
  backend: sim
  regions:
    - target: GPIO
      base: 0x41200000
      size: 0x1000
    - target: DDR
      base: 0x80000000
      size: 0x10000
      page_size: 0x100
  sim_devices:
    - bus: 1
      slave: 0x50
      registers:
        0x10: 0xAB
      read_only: [0x10]
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "zcu102", cfg.Module)
	assert.Equal(t, "127.0.0.1:9750", cfg.Listen)
	assert.Equal(t, uint32(transport.DefaultMaxMessageSize), cfg.MaxMessageSize, "default kept")
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, "/metrics", cfg.Metrics.Path, "default kept")
	assert.Equal(t, rate.Limit(50), cfg.RateLimit.Limit())
	assert.True(t, cfg.MDNS.Enabled)
	assert.False(t, cfg.TLS.Enabled())

	lvl, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	require.Len(t, cfg.Hardware.Regions, 2)
	assert.Equal(t, uint32(0x41200000), cfg.Hardware.Regions[0].Base)
	assert.Equal(t, map[wire.AccessTarget]uint32{wire.AccessDDR: 0x100}, cfg.Hardware.PageSizes())
	assert.Equal(t, []wire.AccessTarget{wire.AccessI2C, wire.AccessGPIO, wire.AccessDDR}, cfg.Hardware.Targets())
	assert.Equal(t, map[uint32]uint32{0x10: 0xAB}, cfg.Hardware.Devices[0].Registers)
}

func TestBuildSim(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	mem, bus, err := cfg.Hardware.Build()
	require.NoError(t, err)

	err = hw.WithRegion(mem, 0x80000000+0x200, 4, func(r hw.Region) error {
		return r.WriteAt(0, wire.WidthLong, 0xDEADBEEF)
	})
	require.NoError(t, err)

	err = hw.WithBus(bus, 1, 0x50, func(b hw.Bus) error {
		v, err := b.Read(0x10, wire.WidthByte)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xAB), v)
		back, err := b.Write(0x10, wire.WidthByte, 0x01)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xAB), back, "read-only register")
		return nil
	})
	require.NoError(t, err)
}

func TestBuildDevMem(t *testing.T) {
	h := Default().Hardware
	h.Backend = BackendDevMem
	mem, bus, err := h.Build()
	require.NoError(t, err)
	assert.IsType(t, &hw.DevMemMapper{}, mem)
	assert.IsType(t, &hw.DevBus{}, bus)
	assert.Equal(t, []wire.AccessTarget{wire.AccessI2C}, h.Targets())
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty module", func(c *Config) { c.Module = " " }},
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero message size", func(c *Config) { c.MaxMessageSize = 0 }},
		{"huge message size", func(c *Config) { c.MaxMessageSize = MaxMessageSizeLimit + 1 }},
		{"negative connections", func(c *Config) { c.MaxConnections = -1 }},
		{"cert without key", func(c *Config) { c.TLS.Cert = "server.pem" }},
		{"key without cert", func(c *Config) { c.TLS.Key = "server.key" }},
		{"client cert without ca", func(c *Config) {
			c.TLS = TLS{Cert: "c", Key: "k", RequireClientCert: true}
		}},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
		{"unknown backend", func(c *Config) { c.Hardware.Backend = "fpga" }},
		{"sim devices on devmem", func(c *Config) {
			c.Hardware.Backend = BackendDevMem
			c.Hardware.Devices = []SimDevice{{Bus: 0, Slave: 1}}
		}},
		{"unknown target", func(c *Config) {
			c.Hardware.Regions = []Region{{Target: "SPI", Size: 1}}
		}},
		{"i2c region", func(c *Config) {
			c.Hardware.Regions = []Region{{Target: "I2C", Size: 1}}
		}},
		{"empty region", func(c *Config) {
			c.Hardware.Regions = []Region{{Target: "GPIO"}}
		}},
		{"region overflow", func(c *Config) {
			c.Hardware.Regions = []Region{{Target: "GPIO", Base: 0xFFFFF000, Size: 0x2000}}
		}},
		{"page size on basic target", func(c *Config) {
			c.Hardware.Regions = []Region{{Target: "XADC", Size: 0x100, PageSize: 0x10}}
		}},
		{"duplicate device", func(c *Config) {
			c.Hardware.Devices = []SimDevice{{Bus: 1, Slave: 2}, {Bus: 1, Slave: 2}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Module = ""
	cfg.Hardware.Backend = "fpga"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "module is required")
	assert.ErrorContains(t, err, `unknown hardware backend "fpga"`)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("module: bench\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.Module)
	assert.Equal(t, BackendSim, cfg.Hardware.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("module: [unterminated"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Parse([]byte("hardware:\n  backend: fpga\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}
