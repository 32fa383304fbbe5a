// Package security provides plain TLS helpers for dialing and listening
// between BreezeChat service processes: load a node's certificate/key pair
// from disk, build a client/server tls.Config around it, and check
// expiry. Trimmed from the teacher's CA/ACME issuance machinery (no
// component in this fabric acts as an internal certificate authority —
// see DESIGN.md) down to the file-based load/save helpers it also
// provided, generalized to not assume a CA-issued chain.
package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// certRotationThreshold is the window before expiry at which
// CertNeedsRotation starts reporting true.
const certRotationThreshold = 30 * 24 * time.Hour

// SaveCertToFile saves a TLS certificate to files (cert and key) under
// certDir, as node.crt/node.key.
func SaveCertToFile(cert *tls.Certificate, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	certPath := filepath.Join(certDir, "node.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyPath := filepath.Join(certDir, "node.key")
	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// LoadCertFromFile loads a TLS certificate from node.crt/node.key under
// certDir, populating Leaf.
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// CertExists reports whether both node.crt and node.key are present in
// certDir.
func CertExists(certDir string) bool {
	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")

	_, err1 := os.Stat(certPath)
	_, err2 := os.Stat(keyPath)

	return err1 == nil && err2 == nil
}

// CertNeedsRotation returns true if cert expires within
// certRotationThreshold, or cert is nil.
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < certRotationThreshold
}

// GetCertExpiry returns cert's expiry time, or the zero time if cert is
// nil.
func GetCertExpiry(cert *x509.Certificate) time.Time {
	if cert == nil {
		return time.Time{}
	}
	return cert.NotAfter
}

// GetCertTimeRemaining returns the time remaining until cert's expiry, or
// zero if cert is nil.
func GetCertTimeRemaining(cert *x509.Certificate) time.Duration {
	if cert == nil {
		return 0
	}
	return time.Until(cert.NotAfter)
}

// RemoveCerts removes certDir and everything under it.
func RemoveCerts(certDir string) error {
	return os.RemoveAll(certDir)
}
