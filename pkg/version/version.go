// Package version holds the protocol and software versions of HWCP and the
// TLS ALPN identifiers derived from them.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the protocol version implemented by this library.
const Protocol = "1.0"

// Software is the build version of the HWCP binaries. Release builds set it
// with -ldflags "-X github.com/hwcp-protocol/hwcp-go/pkg/version.Software=v1.2.3".
var Software = "dev"

const alpnPrefix = "hwcp/"

// Version is a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Current returns the parsed Protocol version.
func Current() Version {
	v, err := Parse(Protocol)
	if err != nil {
		panic(err)
	}
	return v
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	majStr, minStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}
	major, err := strconv.ParseUint(majStr, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(minStr, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether both versions share a major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Supported reports whether peers speaking major can talk to this library.
func Supported(major uint16) bool {
	return major == Current().Major
}

// ALPN returns the ALPN protocol identifier for a major version: "hwcp/N".
func ALPN(major uint16) string {
	return alpnPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromALPN extracts the major version from an ALPN identifier.
func MajorFromALPN(alpn string) (uint16, error) {
	suffix, ok := strings.CutPrefix(alpn, alpnPrefix)
	if !ok {
		return 0, fmt.Errorf("not an HWCP ALPN protocol: %q", alpn)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in ALPN %q: %w", alpn, err)
	}
	return uint16(major), nil
}

// ALPNProtocols returns the ALPN identifiers offered during the TLS
// handshake.
func ALPNProtocols() []string {
	return []string{ALPN(Current().Major)}
}
