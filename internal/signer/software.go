package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
)

// Software is a Service backed by file-stored keys. Private keys are PKCS#8
// PEM files under <dir>/private, encrypted with AES-256 when a passphrase is
// given. Key handles are paths relative to the base directory.
type Software struct {
	dir string
}

var _ Service = (*Software)(nil)

// ErrPassphrase indicates a missing or wrong key passphrase.
var ErrPassphrase = errors.New("signer: bad key passphrase")

// NewSoftware returns a software signing service rooted at dir.
func NewSoftware(dir string) *Software {
	return &Software{dir: dir}
}

func (s *Software) keyPath(name string) (handle, abs string) {
	handle = filepath.Join("private", name+".key.pem")
	return handle, filepath.Join(s.dir, handle)
}

func (s *Software) generateKey(name string, passphrase []byte) (string, crypto.Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("signer: generate key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", nil, fmt.Errorf("signer: marshal key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	if len(passphrase) > 0 {
		block, err = x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, passphrase, x509.PEMCipherAES256) //nolint:staticcheck // Deprecated but still used
		if err != nil {
			return "", nil, fmt.Errorf("signer: encrypt key: %w", err)
		}
	}

	handle, abs := s.keyPath(name)
	if err := os.MkdirAll(filepath.Dir(abs), 0700); err != nil {
		return "", nil, fmt.Errorf("signer: key dir: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("signer: create key file: %w", err)
	}
	defer f.Close()
	if err := pem.Encode(f, block); err != nil {
		return "", nil, fmt.Errorf("signer: write key: %w", err)
	}

	return handle, key, nil
}

func (s *Software) loadKey(handle string, passphrase []byte) (crypto.Signer, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, handle))
	if err != nil {
		return nil, fmt.Errorf("signer: read key %s: %w", handle, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signer: no PEM block in %s", handle)
	}

	keyBytes := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("signer: key %s is encrypted: %w", handle, ErrPassphrase)
		}
		keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("signer: decrypt key %s: %w", handle, ErrPassphrase)
		}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(keyBytes)
	if err != nil {
		// A wrong DES/AES passphrase can decrypt to garbage instead of
		// failing outright; treat an unparseable result the same way.
		return nil, fmt.Errorf("signer: parse key %s: %w", handle, ErrPassphrase)
	}
	key, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("signer: key %s does not implement crypto.Signer", handle)
	}
	return key, nil
}

func parseCertPEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("signer: no certificate PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

func encodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// CreateCA implements Service.
func (s *Software) CreateCA(ctx context.Context, req CARequest) (*CAArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, key, err := s.generateKey(req.KeyName, req.Passphrase)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          new(big.Int).SetUint64(req.Serial),
		Subject:               req.Subject,
		NotBefore:             req.NotBefore,
		NotAfter:              req.NotAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	if req.MaxPathLen >= 0 {
		template.MaxPathLen = req.MaxPathLen
		template.MaxPathLenZero = req.MaxPathLen == 0
	}

	parent := template
	signingKey := key
	if req.Issuer != nil {
		parent, err = parseCertPEM(req.Issuer.CertPEM)
		if err != nil {
			return nil, err
		}
		signingKey, err = s.loadKey(req.Issuer.KeyHandle, req.Issuer.Passphrase)
		if err != nil {
			return nil, err
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), signingKey)
	if err != nil {
		return nil, fmt.Errorf("signer: create CA certificate: %w", err)
	}

	return &CAArtifact{
		CertPEM:   encodePEM("CERTIFICATE", der),
		KeyHandle: handle,
	}, nil
}

// CreateCSR implements Service.
func (s *Software) CreateCSR(ctx context.Context, req CSRRequest) (*CSRArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, key, err := s.generateKey(req.KeyName, req.Passphrase)
	if err != nil {
		return nil, err
	}

	template := &x509.CertificateRequest{
		Subject:     req.Subject,
		DNSNames:    req.DNSNames,
		IPAddresses: req.IPs,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("signer: create CSR: %w", err)
	}

	return &CSRArtifact{
		CSRPEM:    encodePEM("CERTIFICATE REQUEST", der),
		KeyHandle: handle,
	}, nil
}

// Sign implements Service.
func (s *Software) Sign(ctx context.Context, req SignRequest) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	block, _ := pem.Decode(req.CSRPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, errors.New("signer: no CSR PEM block")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: parse CSR: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("signer: CSR signature: %w", err)
	}

	issuerCert, err := parseCertPEM(req.Issuer.CertPEM)
	if err != nil {
		return nil, err
	}
	issuerKey, err := s.loadKey(req.Issuer.KeyHandle, req.Issuer.Passphrase)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          new(big.Int).SetUint64(req.Serial),
		Subject:               csr.Subject,
		DNSNames:              csr.DNSNames,
		IPAddresses:           csr.IPAddresses,
		NotBefore:             req.NotBefore,
		NotAfter:              req.NotAfter,
		KeyUsage:              req.KeyUsage,
		ExtKeyUsage:           req.ExtKeyUsage,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuerCert, csr.PublicKey, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("signer: create certificate: %w", err)
	}

	return &Artifact{PEM: encodePEM("CERTIFICATE", der)}, nil
}

// GenerateCRL implements Service.
func (s *Software) GenerateCRL(ctx context.Context, req CRLRequest) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issuerCert, err := parseCertPEM(req.Issuer.CertPEM)
	if err != nil {
		return nil, err
	}
	issuerKey, err := s.loadKey(req.Issuer.KeyHandle, req.Issuer.Passphrase)
	if err != nil {
		return nil, err
	}

	entries := make([]x509.RevocationListEntry, 0, len(req.Revoked))
	for _, r := range req.Revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   new(big.Int).SetUint64(r.Serial),
			RevocationTime: r.RevokedAt.UTC(),
		})
	}

	template := &x509.RevocationList{
		Number:                    new(big.Int).SetUint64(req.Number),
		ThisUpdate:                req.ThisUpdate,
		NextUpdate:                req.NextUpdate,
		RevokedCertificateEntries: entries,
	}

	der, err := x509.CreateRevocationList(rand.Reader, template, issuerCert, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("signer: create CRL: %w", err)
	}

	return &Artifact{PEM: encodePEM("X509 CRL", der)}, nil
}
