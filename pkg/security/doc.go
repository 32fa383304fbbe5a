/*
Package security provides the plain-TLS transport helpers BreezeChat
service processes use to dial and listen on the RPC fabric: loading a
node's certificate/key pair from disk (SaveCertToFile, LoadCertFromFile,
CertExists), checking its expiry (CertNeedsRotation, GetCertExpiry,
GetCertTimeRemaining), and building client/server tls.Config values
(ClientTLSConfig, ServerTLSConfig) around it for use with Dial/Listen.

Mutual TLS is optional: ServerTLSConfig only requires and verifies a
client certificate when given a trusted peer cert to pin against; a nil
trusted cert accepts any client at the TLS layer and leaves authorization
to the RPC method (see pkg/user's session-validation checks for the
analogous pattern at the application layer).

This package does not issue certificates. BreezeChat has no internal
certificate-authority component — operators provision node certificates
out of band (a shared CA, a service mesh sidecar, or self-signed pairs for
local development) and point each process's config.TLSConfig.CertDir at the
directory holding the resulting files.
*/
package security
