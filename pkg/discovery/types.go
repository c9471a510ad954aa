package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/hwcp-protocol/hwcp-go/pkg/transport"
	"github.com/hwcp-protocol/hwcp-go/pkg/version"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of HWCP servers.
	ServiceType = "_hwcp._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is advertised when ServerInfo.Port is zero.
	DefaultPort = transport.DefaultPort
)

// TXT record keys.
const (
	TXTKeyModule   = "module"  // Module name served by the host
	TXTKeyVersion  = "pv"      // Protocol version
	TXTKeyTLS      = "tls"     // "1" when the server requires TLS
	TXTKeyTargets  = "targets" // Access targets with a backend (comma-separated, optional)
	TXTKeySoftware = "sw"      // Server software version (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 5 * time.Second

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrTXTTooLarge         = errors.New("TXT record too large")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// ServerInfo describes an HWCP server for advertising.
type ServerInfo struct {
	// Instance is the DNS-SD instance name. Empty means "HWCP <module>".
	Instance string

	// Module is the name of the hardware module the server controls.
	Module string

	// Port is the TCP port (0 = DefaultPort).
	Port uint16

	// TLS reports whether clients must connect with TLS.
	TLS bool

	// Targets lists the access targets the server has a backend for.
	Targets []wire.AccessTarget

	// Software is the server software version (empty = version.Software).
	Software string
}

// InstanceName returns the instance name to register.
func (i *ServerInfo) InstanceName() string {
	name := i.Instance
	if name == "" {
		name = "HWCP " + i.Module
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Service is a discovered HWCP server.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Module   string
	Version  int
	TLS      bool
	Targets  []wire.AccessTarget
	Software string
}

// Address returns host:port for the first known address, falling back to the
// host name.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// Supports reports whether the service advertises a backend for target.
// A service that advertises no targets is assumed to support all of them.
func (s *Service) Supports(target wire.AccessTarget) bool {
	if len(s.Targets) == 0 {
		return true
	}
	for _, t := range s.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Compatible reports whether the service speaks a protocol major version
// this library supports.
func (s *Service) Compatible() bool {
	return s.Version > 0 && s.Version <= 0xFFFF && version.Supported(uint16(s.Version))
}
