package ca

import (
	"time"

	"github.com/srikantkt/certmgr/internal/ledger"
)

// DisplayStatus is the status shown to callers. The ledger only ever stores
// valid or revoked; expiry is computed against the clock at read time.
type DisplayStatus string

const (
	DisplayValid   DisplayStatus = "valid"
	DisplayRevoked DisplayStatus = "revoked"
	DisplayExpired DisplayStatus = "expired"
)

// CertificateInfo is the read model of a certificate record.
type CertificateInfo struct {
	Serial       uint64        `json:"serial"`
	Scope        ledger.Scope  `json:"scope"`
	Subject      string        `json:"subject"`
	NotBefore    time.Time     `json:"not_before"`
	NotAfter     time.Time     `json:"not_after"`
	Status       DisplayStatus `json:"status"`
	RevokedAt    *time.Time    `json:"revoked_at,omitempty"`
	ArtifactPath string        `json:"artifact_path"`
}

// toInfo computes the display status. Revocation wins over expiry.
func (m *Manager) toInfo(rec ledger.Record) CertificateInfo {
	status := DisplayValid
	switch {
	case rec.Status == ledger.StatusRevoked:
		status = DisplayRevoked
	case !rec.NotAfter.IsZero() && m.now().After(rec.NotAfter):
		status = DisplayExpired
	}
	return CertificateInfo{
		Serial:       rec.Serial,
		Scope:        rec.Scope,
		Subject:      rec.Subject,
		NotBefore:    rec.NotBefore,
		NotAfter:     rec.NotAfter,
		Status:       status,
		RevokedAt:    rec.RevokedAt,
		ArtifactPath: rec.ArtifactPath,
	}
}

// List returns the certificates of a scope, ascending by serial. It never
// mutates the ledger.
func (m *Manager) List(scope ledger.Scope) ([]CertificateInfo, error) {
	const op = "list"

	records, err := m.store.ListRecords(scope)
	if err != nil {
		return nil, opErr(op, m.mapLedgerErr(err))
	}
	infos := make([]CertificateInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, m.toInfo(rec))
	}
	return infos, nil
}

// Get returns one certificate by (scope, serial).
func (m *Manager) Get(scope ledger.Scope, serial uint64) (*CertificateInfo, error) {
	const op = "get"

	rec, err := m.store.GetRecord(scope, serial)
	if err != nil {
		return nil, opErrSerial(op, serial, m.mapLedgerErr(err))
	}
	info := m.toInfo(*rec)
	return &info, nil
}

// CRLNumber returns the most recently issued CRL number for a scope, or 0 if
// no CRL has been generated.
func (m *Manager) CRLNumber(scope ledger.Scope) (uint64, error) {
	n, err := m.store.CurrentCRLNumber(scope)
	if err != nil {
		return 0, opErr("crlNumber", m.mapLedgerErr(err))
	}
	return n, nil
}
