package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/hwcp-protocol/hwcp-go/pkg/version"
)

// TLS constants for HWCP.
const (
	// DefaultPort is the default HWCP port.
	DefaultPort = 9750
)

// TLSFiles names the PEM files of a TLS endpoint.
type TLSFiles struct {
	// CertFile and KeyFile hold this endpoint's certificate and key.
	// Required for servers, optional for clients.
	CertFile string
	KeyFile  string

	// CAFile holds the CA bundle used to verify the peer.
	// On a server it enables client certificate verification.
	CAFile string

	// RequireClientCert rejects clients without a verified certificate.
	// Server only; needs CAFile.
	RequireClientCert bool

	// ServerName is the expected server name. Client only.
	ServerName string

	// InsecureSkipVerify disables server certificate verification.
	// Client only. For testing.
	InsecureSkipVerify bool
}

// ServerTLSConfig builds a TLS configuration for an HWCP server.
func ServerTLSConfig(f TLSFiles) (*tls.Config, error) {
	if f.CertFile == "" || f.KeyFile == "" {
		return nil, errors.New("server TLS needs a certificate and a key")
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}

	cfg := baseTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}

	if f.CAFile != "" {
		pool, err := loadCertPool(f.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
		if f.RequireClientCert {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	} else if f.RequireClientCert {
		return nil, errors.New("client certificate verification needs a CA file")
	}
	return cfg, nil
}

// ClientTLSConfig builds a TLS configuration for an HWCP client.
func ClientTLSConfig(f TLSFiles) (*tls.Config, error) {
	cfg := baseTLSConfig()
	cfg.ServerName = f.ServerName
	cfg.InsecureSkipVerify = f.InsecureSkipVerify

	if f.CertFile != "" || f.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if f.CAFile != "" {
		pool, err := loadCertPool(f.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func baseTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: version.ALPNProtocols(),
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in CA file %s", path)
	}
	return pool, nil
}

// VerifyConnection checks that a TLS connection negotiated TLS 1.3 and the
// HWCP ALPN protocol.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("TLS version %x is not TLS 1.3 (0x0304)", state.Version)
	}
	major, err := version.MajorFromALPN(state.NegotiatedProtocol)
	if err != nil {
		return err
	}
	if !version.Supported(major) {
		return fmt.Errorf("protocol major version %d is not supported", major)
	}
	return nil
}
