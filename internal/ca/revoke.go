package ca

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/signer"
)

// CRLInfo describes a freshly generated CRL artifact.
type CRLInfo struct {
	Scope        ledger.Scope `json:"scope"`
	Number       uint64       `json:"number"`
	Path         string       `json:"path"`
	RevokedCount int          `json:"revoked_count"`
	ThisUpdate   time.Time    `json:"this_update"`
	NextUpdate   time.Time    `json:"next_update"`
}

// RevocationResult reports a revocation. The revocation itself is durable
// once Revoke returns nil; a CRL regeneration failure is carried in CRLErr
// so callers can surface it as a warning instead of mistaking the revocation
// for failed.
type RevocationResult struct {
	Record *CertificateInfo
	CRL    *CRLInfo
	CRLErr error
}

// Revoke marks the certificate revoked and regenerates the scope CRL.
// Revoking an already revoked certificate is an error, not a no-op.
func (m *Manager) Revoke(ctx context.Context, serial uint64, passphrase []byte, reason string) (*RevocationResult, error) {
	const op = "revoke"

	if m.State() != StateIntermediateReady {
		return nil, opErrSerial(op, serial, fmt.Errorf("intermediate CA required: %w", ErrHierarchyNotReady))
	}
	if err := m.checkScope(ledger.ScopeIntermediate); err != nil {
		return nil, opErrSerial(op, serial, err)
	}

	mu := m.mu[ledger.ScopeIntermediate]
	mu.Lock()
	defer mu.Unlock()

	rec, err := m.store.MarkRevoked(ledger.ScopeIntermediate, serial, m.now())
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, opErrSerial(op, serial, m.mapLedgerErr(err))
	}

	if reason == "" {
		reason = "unspecified"
	}
	if err := m.log.CertRevoked(string(ledger.ScopeIntermediate), serial, rec.Subject, reason); err != nil {
		return nil, opErrSerial(op, serial, err)
	}

	result := &RevocationResult{}
	info := m.toInfo(*rec)
	result.Record = &info

	// The revocation is committed; a CRL failure must not undo it.
	crl, crlErr := m.regenerateCRLLocked(ctx, passphrase)
	result.CRL = crl
	if crlErr != nil {
		result.CRLErr = opErrSerial(op, serial, crlErr)
	}
	return result, nil
}

// UpdateCRL regenerates the intermediate scope CRL on demand.
func (m *Manager) UpdateCRL(ctx context.Context, passphrase []byte) (*CRLInfo, error) {
	const op = "updateCRL"

	if m.State() != StateIntermediateReady {
		return nil, opErr(op, fmt.Errorf("intermediate CA required: %w", ErrHierarchyNotReady))
	}
	if err := m.checkScope(ledger.ScopeIntermediate); err != nil {
		return nil, opErr(op, err)
	}

	mu := m.mu[ledger.ScopeIntermediate]
	mu.Lock()
	defer mu.Unlock()

	crl, err := m.regenerateCRLLocked(ctx, passphrase)
	if err != nil {
		return nil, opErr(op, err)
	}
	return crl, nil
}

// regenerateCRLLocked rebuilds the full CRL for the intermediate scope.
// Caller holds the intermediate scope lock.
func (m *Manager) regenerateCRLLocked(ctx context.Context, passphrase []byte) (*CRLInfo, error) {
	scope, err := m.store.GetScope(ledger.ScopeIntermediate)
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, m.mapLedgerErr(err)
	}
	issuerCert, err := m.readArtifact(scope.CertPath)
	if err != nil {
		return nil, err
	}

	revoked, err := m.store.ListRevoked(ledger.ScopeIntermediate)
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, m.mapLedgerErr(err)
	}

	number, err := m.store.NextCRLNumber(ledger.ScopeIntermediate)
	if err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, m.mapLedgerErr(err)
	}

	entries := make([]signer.RevokedEntry, 0, len(revoked))
	for _, rec := range revoked {
		entries = append(entries, signer.RevokedEntry{
			Serial:    rec.Serial,
			RevokedAt: *rec.RevokedAt,
		})
	}

	thisUpdate := m.now()
	nextUpdate := thisUpdate.AddDate(0, 0, m.cfg.Load().CRLDays)

	sctx, cancel := m.signingCtx(ctx)
	defer cancel()

	art, err := m.signer.GenerateCRL(sctx, signer.CRLRequest{
		Number:     number,
		ThisUpdate: thisUpdate,
		NextUpdate: nextUpdate,
		Revoked:    entries,
		Issuer: signer.Issuer{
			CertPEM:    issuerCert,
			KeyHandle:  scope.KeyHandle,
			Passphrase: passphrase,
		},
	})
	if err != nil {
		return nil, m.mapSignerErr(ledger.ScopeIntermediate, scope.KeyHandle, err)
	}

	crlPath := filepath.Join("crl", "intermediate.crl.pem")
	if err := m.writeArtifact(crlPath, art.PEM); err != nil {
		return nil, err
	}

	if err := m.log.CRLGenerated(string(ledger.ScopeIntermediate), number, crlPath); err != nil {
		return nil, err
	}

	return &CRLInfo{
		Scope:        ledger.ScopeIntermediate,
		Number:       number,
		Path:         crlPath,
		RevokedCount: len(entries),
		ThisUpdate:   thisUpdate.UTC(),
		NextUpdate:   nextUpdate.UTC(),
	}, nil
}
