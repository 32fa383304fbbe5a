package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// selfSignedCert builds a minimal self-signed certificate for test use,
// standing in for a node certificate without a CA component.
func selfSignedCert(t *testing.T, commonName string, notAfter time.Time) *tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

func TestSaveLoadCertToFile(t *testing.T) {
	cert := selfSignedCert(t, "user-1", time.Now().Add(90*24*time.Hour))
	certDir := t.TempDir()

	require.NoError(t, SaveCertToFile(cert, certDir))

	require.FileExists(t, filepath.Join(certDir, "node.crt"))
	require.FileExists(t, filepath.Join(certDir, "node.key"))

	loaded, err := LoadCertFromFile(certDir)
	require.NoError(t, err)
	require.Equal(t, cert.Leaf.Subject.CommonName, loaded.Leaf.Subject.CommonName)
}

func TestCertExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, CertExists(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node.crt"), []byte("cert"), 0600))
	require.False(t, CertExists(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node.key"), []byte("key"), 0600))
	require.True(t, CertExists(dir))
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		want     bool
	}{
		{"expires tomorrow", time.Now().Add(24 * time.Hour), true},
		{"expires in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expires in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expires in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			require.Equal(t, tt.want, CertNeedsRotation(cert))
		})
	}
	require.True(t, CertNeedsRotation(nil))
}

func TestGetCertExpiry(t *testing.T) {
	expiry := time.Now().Add(90 * 24 * time.Hour)
	cert := &x509.Certificate{NotAfter: expiry}

	require.True(t, GetCertExpiry(cert).Equal(expiry))
	require.True(t, GetCertExpiry(nil).IsZero())
}

func TestGetCertTimeRemaining(t *testing.T) {
	want := 45 * 24 * time.Hour
	cert := &x509.Certificate{NotAfter: time.Now().Add(want)}

	remaining := GetCertTimeRemaining(cert)
	require.InDelta(t, want.Seconds(), remaining.Seconds(), 1)
	require.Zero(t, GetCertTimeRemaining(nil))
}

func TestRemoveCerts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node.crt"), []byte("cert"), 0600))

	require.NoError(t, RemoveCerts(dir))
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}
