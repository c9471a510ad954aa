package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwcp-protocol/hwcp-go/pkg/log"
	"github.com/hwcp-protocol/hwcp-go/pkg/version"
)

// echoHandler sends every frame back until the connection fails.
func echoHandler(_ context.Context, c *Conn) {
	for {
		data, err := c.Receive(0)
		if err != nil {
			return
		}
		if err := c.Send(data); err != nil {
			return
		}
	}
}

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.Handler == nil {
		cfg.Handler = echoHandler
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServerEcho(t *testing.T) {
	s := startServer(t, ServerConfig{})

	c, err := Dial(context.Background(), s.Addr().String(), DialConfig{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send([]byte("hello")))
	got, err := c.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return s.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServerStartTwice(t *testing.T) {
	s := startServer(t, ServerConfig{})
	assert.Error(t, s.Start(context.Background()))
}

func TestServerStopClosesConnections(t *testing.T) {
	s := startServer(t, ServerConfig{})

	c, err := Dial(context.Background(), s.Addr().String(), DialConfig{})
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop(), "second stop")

	_, err = c.Receive(time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestServerMaxConnections(t *testing.T) {
	s := startServer(t, ServerConfig{MaxConnections: 1})

	first, err := Dial(context.Background(), s.Addr().String(), DialConfig{})
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	second, err := Dial(context.Background(), s.Addr().String(), DialConfig{})
	require.NoError(t, err)
	defer second.Close()

	_, err = second.Receive(time.Second)
	assert.Error(t, err, "over-limit connection should be closed")
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, s.ConnectionCount())
}

func TestServerLogsState(t *testing.T) {
	logger := &capturingLogger{}
	s := startServer(t, ServerConfig{Logger: logger})

	c, err := Dial(context.Background(), s.Addr().String(), DialConfig{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	c.Close()
	require.NoError(t, s.Stop())

	var states []string
	for _, e := range logger.Events() {
		if e.Category == log.CategoryState {
			states = append(states, e.StateChange.Entity.String()+":"+e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{
		"SERVER:RUNNING",
		"CONNECTION:CONNECTED",
		"CONNECTION:DISCONNECTED",
		"SERVER:STOPPED",
	}, states)
}

func TestServerTLS(t *testing.T) {
	files := writeTestCert(t)

	serverTLS, err := ServerTLSConfig(TLSFiles{CertFile: files.cert, KeyFile: files.key})
	require.NoError(t, err)
	s := startServer(t, ServerConfig{TLS: serverTLS})

	clientTLS, err := ClientTLSConfig(TLSFiles{CAFile: files.cert, ServerName: "localhost"})
	require.NoError(t, err)

	c, err := Dial(context.Background(), s.Addr().String(), DialConfig{TLS: clientTLS})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send([]byte{0xA4}))
	got, err := c.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA4}, got)
}

func TestServerTLSRejectsUntrustedClient(t *testing.T) {
	files := writeTestCert(t)

	serverTLS, err := ServerTLSConfig(TLSFiles{CertFile: files.cert, KeyFile: files.key})
	require.NoError(t, err)
	s := startServer(t, ServerConfig{TLS: serverTLS})

	// No CA: the self-signed server certificate is not trusted.
	clientTLS, err := ClientTLSConfig(TLSFiles{ServerName: "localhost"})
	require.NoError(t, err)
	_, err = Dial(context.Background(), s.Addr().String(), DialConfig{TLS: clientTLS, ConnectTimeout: time.Second})
	assert.Error(t, err)
}

func TestTLSConfigErrors(t *testing.T) {
	files := writeTestCert(t)

	_, err := ServerTLSConfig(TLSFiles{})
	assert.Error(t, err, "missing key pair")

	_, err = ServerTLSConfig(TLSFiles{CertFile: files.cert, KeyFile: files.key, RequireClientCert: true})
	assert.Error(t, err, "client verification without CA")

	_, err = ClientTLSConfig(TLSFiles{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a cert"), 0o600))
	_, err = ClientTLSConfig(TLSFiles{CAFile: empty})
	assert.Error(t, err)

	cfg, err := ServerTLSConfig(TLSFiles{CertFile: files.cert, KeyFile: files.key, CAFile: files.cert, RequireClientCert: true})
	require.NoError(t, err)
	assert.NotNil(t, cfg.ClientCAs)
	assert.Equal(t, version.ALPNProtocols(), cfg.NextProtos)
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, DialConfig{ConnectTimeout: time.Second})
	assert.Error(t, err)
}

type certFiles struct {
	cert, key string
}

// writeTestCert writes a self-signed localhost certificate and its key.
func writeTestCert(t *testing.T) certFiles {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	files := certFiles{
		cert: filepath.Join(dir, "cert.pem"),
		key:  filepath.Join(dir, "key.pem"),
	}
	require.NoError(t, os.WriteFile(files.cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(files.key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return files
}

func TestVerifyConnection(t *testing.T) {
	ok := tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: version.ALPN(version.Current().Major)}
	assert.NoError(t, VerifyConnection(ok))

	old := ok
	old.Version = tls.VersionTLS12
	assert.Error(t, VerifyConnection(old))

	none := ok
	none.NegotiatedProtocol = ""
	assert.Error(t, VerifyConnection(none))

	future := ok
	future.NegotiatedProtocol = version.ALPN(version.Current().Major + 1)
	assert.ErrorContains(t, VerifyConnection(future), "not supported")
}
