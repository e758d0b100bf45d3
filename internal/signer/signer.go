// Package signer defines the signing capability boundary of the CA manager.
//
// The lifecycle engine never touches key material directly: it allocates
// serials and keeps the ledger, then asks a Service to produce certificates
// and CRLs. Service implementations own the private keys and identify them by
// opaque handles.
package signer

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"time"
)

// Service produces signed artifacts on behalf of the lifecycle engine.
// Implementations must honor context cancellation and deadlines.
type Service interface {
	// CreateCA generates a CA key pair and certificate. A nil Issuer makes
	// the certificate self-signed (root); otherwise the issuer key signs it
	// (intermediate).
	CreateCA(ctx context.Context, req CARequest) (*CAArtifact, error)

	// CreateCSR generates a key pair and a certificate signing request.
	CreateCSR(ctx context.Context, req CSRRequest) (*CSRArtifact, error)

	// Sign issues an end-entity certificate from a CSR.
	Sign(ctx context.Context, req SignRequest) (*Artifact, error)

	// GenerateCRL signs a complete revocation list.
	GenerateCRL(ctx context.Context, req CRLRequest) (*Artifact, error)
}

// Issuer identifies the signing CA for a request.
type Issuer struct {
	CertPEM    []byte
	KeyHandle  string
	Passphrase []byte
}

// CARequest describes a CA certificate to create.
type CARequest struct {
	KeyName    string
	Passphrase []byte
	Subject    pkix.Name
	Serial     uint64
	NotBefore  time.Time
	NotAfter   time.Time

	// MaxPathLen applies when >= 0; a root typically leaves it unconstrained.
	MaxPathLen int

	// Issuer is nil for a self-signed root.
	Issuer *Issuer
}

// CAArtifact is the result of CreateCA.
type CAArtifact struct {
	CertPEM   []byte
	KeyHandle string
}

// CSRRequest describes a key pair plus CSR to create.
type CSRRequest struct {
	KeyName    string
	Passphrase []byte
	Subject    pkix.Name
	DNSNames   []string
	IPs        []net.IP
}

// CSRArtifact is the result of CreateCSR.
type CSRArtifact struct {
	CSRPEM    []byte
	KeyHandle string
}

// SignRequest describes an end-entity certificate to issue.
type SignRequest struct {
	CSRPEM    []byte
	Serial    uint64
	NotBefore time.Time
	NotAfter  time.Time

	// Extension profile, resolved by the caller from the cert type.
	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage

	Issuer Issuer
}

// RevokedEntry is one CRL entry.
type RevokedEntry struct {
	Serial    uint64
	RevokedAt time.Time
}

// CRLRequest describes a revocation list to sign.
type CRLRequest struct {
	Number     uint64
	ThisUpdate time.Time
	NextUpdate time.Time
	Revoked    []RevokedEntry
	Issuer     Issuer
}

// Artifact is a signed PEM artifact.
type Artifact struct {
	PEM []byte
}
