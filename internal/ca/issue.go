package ca

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"path/filepath"

	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/profile"
	"github.com/srikantkt/certmgr/internal/signer"
)

// CSRRequest describes a key pair plus CSR to create.
type CSRRequest struct {
	CommonName string
	Type       profile.CertType
	DNSNames   []string
	IPs        []net.IP
	Passphrase []byte
}

// CSRResult is the outcome of CreateCertRequest.
type CSRResult struct {
	CSRPath   string
	KeyHandle string
	CSRPEM    []byte
}

// CreateCertRequest generates a key pair and CSR for a future end-entity
// certificate. The CSR is kept under csr/ as part of the audit trail, and the
// matching OpenSSL-style request config is rendered into conf/ for operators
// who want to re-issue outside this tool.
func (m *Manager) CreateCertRequest(ctx context.Context, req CSRRequest) (*CSRResult, error) {
	const op = "createCertReq"

	if req.CommonName == "" {
		return nil, opErr(op, fmt.Errorf("common name is required: %w", ErrInvalidRequest))
	}
	if !req.Type.Valid() {
		return nil, opErr(op, fmt.Errorf("certificate type %q: %w", req.Type, ErrInvalidRequest))
	}

	dnsNames := req.DNSNames
	if len(dnsNames) == 0 {
		dnsNames = []string{req.CommonName}
	}
	ips := req.IPs
	if len(ips) == 0 {
		ips = []net.IP{net.ParseIP("127.0.0.1")}
	}

	name := safeName(req.CommonName)
	cfg := m.cfg.Load()

	sctx, cancel := m.signingCtx(ctx)
	defer cancel()

	art, err := m.signer.CreateCSR(sctx, signer.CSRRequest{
		KeyName:    name,
		Passphrase: req.Passphrase,
		Subject:    caSubject(cfg, req.CommonName),
		DNSNames:   dnsNames,
		IPs:        ips,
	})
	if err != nil {
		return nil, opErr(op, m.mapSignerErr(ledger.ScopeIntermediate, "", err))
	}

	csrPath := filepath.Join("csr", name+".csr.pem")
	if err := m.writeArtifact(csrPath, art.CSRPEM); err != nil {
		return nil, opErr(op, err)
	}

	confPath := filepath.Join(m.layout.ConfDir(), "csr_"+name+".cnf")
	err = profile.RenderTemplateFile(profile.TemplateCSR, confPath, map[string]string{
		"CERT_CN": req.CommonName,
		"COUNTRY": cfg.Country,
		"STATE":   cfg.State,
		"ORG":     cfg.Organization,
		"SAN_DNS": dnsNames[0],
		"SAN_IP":  ips[0].String(),
	})
	if err != nil {
		return nil, opErr(op, err)
	}

	return &CSRResult{
		CSRPath:   csrPath,
		KeyHandle: art.KeyHandle,
		CSRPEM:    art.CSRPEM,
	}, nil
}

// IssueRequest describes an end-entity certificate to issue.
type IssueRequest struct {
	CSRPEM     []byte
	Type       profile.CertType
	Passphrase []byte // intermediate CA key passphrase
}

// Issue signs an end-entity certificate from a CSR.
//
// The serial counter is committed before the signing call, so a crash or
// signing failure after allocation burns the serial: a gap in the sequence,
// never a reuse. No other ledger write happens until the signing result is
// in hand.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*CertificateInfo, error) {
	const op = "issue"

	csr, err := validateCSR(req)
	if err != nil {
		return nil, opErr(op, err)
	}

	if m.State() != StateIntermediateReady {
		return nil, opErr(op, fmt.Errorf("intermediate CA required: %w", ErrHierarchyNotReady))
	}
	if err := m.checkScope(ledger.ScopeIntermediate); err != nil {
		return nil, opErr(op, err)
	}

	interScope, err := m.store.GetScope(ledger.ScopeIntermediate)
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}
	interCert, err := m.readArtifact(interScope.CertPath)
	if err != nil {
		return nil, opErr(op, err)
	}

	prof, err := profile.Builtin(req.Type)
	if err != nil {
		return nil, opErr(op, fmt.Errorf("%v: %w", err, ErrInvalidRequest))
	}

	mu := m.mu[ledger.ScopeIntermediate]
	mu.Lock()
	serial, err := m.store.NextSerial(ledger.ScopeIntermediate)
	mu.Unlock()
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}

	now := m.now()
	notAfter := now.AddDate(0, 0, m.cfg.Load().CertDays)

	// The scope lock is not held across the signing call.
	sctx, cancel := m.signingCtx(ctx)
	defer cancel()

	art, err := m.signer.Sign(sctx, signer.SignRequest{
		CSRPEM:      req.CSRPEM,
		Serial:      serial,
		NotBefore:   now,
		NotAfter:    notAfter,
		KeyUsage:    prof.X509KeyUsage(),
		ExtKeyUsage: prof.X509ExtKeyUsage(),
		Issuer: signer.Issuer{
			CertPEM:    interCert,
			KeyHandle:  interScope.KeyHandle,
			Passphrase: req.Passphrase,
		},
	})
	if err != nil {
		return nil, opErrSerial(op, serial, m.mapSignerErr(ledger.ScopeIntermediate, interScope.KeyHandle, err))
	}
	if err := m.log.KeyAccessed(string(ledger.ScopeIntermediate), interScope.KeyHandle); err != nil {
		return nil, opErrSerial(op, serial, err)
	}

	certPath := filepath.Join("certs", fmt.Sprintf("%s-%d.cert.pem", safeName(csr.Subject.CommonName), serial))
	if err := m.writeArtifact(certPath, art.PEM); err != nil {
		return nil, opErrSerial(op, serial, err)
	}

	rec := ledger.Record{
		Serial:       serial,
		Scope:        ledger.ScopeIntermediate,
		Subject:      csr.Subject.CommonName,
		NotBefore:    now.UTC(),
		NotAfter:     notAfter.UTC(),
		Status:       ledger.StatusValid,
		ArtifactPath: certPath,
	}
	mu.Lock()
	err = m.store.PutRecord(rec)
	mu.Unlock()
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, opErrSerial(op, serial, m.mapLedgerErr(err))
	}

	if err := m.log.CertIssued(string(ledger.ScopeIntermediate), serial, rec.Subject, string(req.Type)); err != nil {
		return nil, opErrSerial(op, serial, err)
	}

	info := m.toInfo(rec)
	return &info, nil
}

func validateCSR(req IssueRequest) (*x509.CertificateRequest, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("certificate type %q: %w", req.Type, ErrInvalidRequest)
	}

	block, _ := pem.Decode(req.CSRPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("no CSR PEM block: %w", ErrInvalidRequest)
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unparseable CSR: %v: %w", err, ErrInvalidRequest)
	}
	if csr.Subject.CommonName == "" {
		return nil, fmt.Errorf("CSR has no common name: %w", ErrInvalidRequest)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature invalid: %v: %w", err, ErrInvalidRequest)
	}
	return csr, nil
}
