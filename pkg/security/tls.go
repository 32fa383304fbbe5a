package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// ServerTLSConfig builds a tls.Config for a listening service process from
// a loaded node certificate. If trustedPeerCert is non-nil, client
// certificates are required and verified against it (mutual TLS between
// BreezeChat services); otherwise any client is accepted at the TLS layer
// and authorization is left to the RPC method itself.
func ServerTLSConfig(cert *tls.Certificate, trustedPeerCert *x509.Certificate) *tls.Config {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
	if trustedPeerCert != nil {
		pool := x509.NewCertPool()
		pool.AddCert(trustedPeerCert)
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

// ClientTLSConfig builds a tls.Config for dialing another BreezeChat
// service. If trustedServerCert is non-nil it pins trust to exactly that
// certificate instead of the system root pool, appropriate for a closed
// fabric of known service instances rather than public-internet TLS.
// clientCert is optional; pass nil when the server does not require mTLS.
func ClientTLSConfig(serverName string, trustedServerCert *x509.Certificate, clientCert *tls.Certificate) *tls.Config {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if trustedServerCert != nil {
		pool := x509.NewCertPool()
		pool.AddCert(trustedServerCert)
		cfg.RootCAs = pool
	}
	if clientCert != nil {
		cfg.Certificates = []tls.Certificate{*clientCert}
	}
	return cfg
}

// Listen wraps net.Listen("tcp", addr) with cfg, the plain-TLS substitute
// for the teacher's CA-backed cluster listener.
func Listen(addr string, cfg *tls.Config) (net.Listener, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("security: listen %s: %w", addr, err)
	}
	return ln, nil
}

// Dial wraps tls.Dial("tcp", addr) with cfg.
func Dial(addr string, cfg *tls.Config) (*tls.Conn, error) {
	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("security: dial %s: %w", addr, err)
	}
	return conn, nil
}
