package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedForTLS(t *testing.T, commonName string) *tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{commonName},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

// TestListenDialRoundTrip covers the plain (non-mutual) TLS path: a client
// pinned to the server's self-signed cert can dial and exchange bytes.
func TestListenDialRoundTrip(t *testing.T) {
	serverCert := selfSignedForTLS(t, "localhost")
	serverCfg := ServerTLSConfig(serverCert, nil)

	ln, err := Listen("127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(conn, buf)
		_, _ = conn.Write(buf)
	}()

	clientCfg := ClientTLSConfig("localhost", serverCert.Leaf, nil)
	conn, err := Dial(ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	echo := make([]byte, 5)
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	require.Equal(t, "hello", string(echo))
}

// TestServerRejectsUntrustedClientUnderMutualTLS covers the mTLS path:
// when the server pins a trusted peer cert, a client presenting no
// certificate is rejected at the handshake.
func TestServerRejectsUntrustedClientUnderMutualTLS(t *testing.T) {
	serverCert := selfSignedForTLS(t, "localhost")
	peerCert := selfSignedForTLS(t, "trusted-client")
	serverCfg := ServerTLSConfig(serverCert, peerCert.Leaf)

	ln, err := Listen("127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	clientCfg := ClientTLSConfig("localhost", serverCert.Leaf, nil) // no client cert presented
	conn, err := Dial(ln.Addr().String(), clientCfg)
	if err == nil {
		conn.Close()
	}
	require.Error(t, err)
}
