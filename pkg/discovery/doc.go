// Package discovery implements mDNS/DNS-SD discovery for HWCP servers.
//
// Servers advertise the service type _hwcp._tcp. The instance name defaults
// to "HWCP <module>". TXT records carry:
//
//   - module: name of the hardware module the server controls (required)
//   - pv: protocol version (required)
//   - tls: "1" when clients must use TLS, "0" otherwise
//   - targets: comma-separated access targets with a backend, e.g. "I2C,GPIO,DDR"
//   - sw: server software version
//
// Clients browse with MDNSBrowser and connect to Service.Address().
package discovery
