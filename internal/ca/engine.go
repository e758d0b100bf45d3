// Package ca implements the CA lifecycle engine: the hierarchy state
// machine, issuance, revocation, CRL regeneration and the certificate query
// surface. All durable state lives in the ledger; key material stays behind
// the signer.Service boundary.
package ca

import (
	"context"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srikantkt/certmgr/internal/audit"
	"github.com/srikantkt/certmgr/internal/config"
	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/profile"
	"github.com/srikantkt/certmgr/internal/signer"
)

// State is the position in the hierarchy state machine. Transitions are
// one-way: Uninitialized -> RootReady -> IntermediateReady.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateRootReady         State = "root-ready"
	StateIntermediateReady State = "intermediate-ready"
)

// Manager is the lifecycle engine. It owns one per-scope mutex around the
// write paths; reads go straight to the ledger's snapshot view.
type Manager struct {
	// cfg holds the active configuration. Each operation loads one
	// snapshot; replacing the configuration swaps the pointer, so the
	// snapshot must be treated as immutable.
	cfg    atomic.Pointer[config.Config]
	layout config.Layout
	store  *ledger.Store
	signer signer.Service
	log    *audit.Log
	now    func() time.Time

	mu map[ledger.Scope]*sync.Mutex

	poisonMu sync.Mutex
	poisoned map[ledger.Scope]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source used for validity and display status.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAuditLog sets the audit log. Without it, events are discarded.
func WithAuditLog(l *audit.Log) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager assembles the engine.
func NewManager(cfg *config.Config, layout config.Layout, store *ledger.Store, svc signer.Service, opts ...Option) *Manager {
	m := &Manager{
		layout: layout,
		store:  store,
		signer: svc,
		log:    audit.NewLog(nil),
		now:    time.Now,
		mu: map[ledger.Scope]*sync.Mutex{
			ledger.ScopeRoot:         {},
			ledger.ScopeIntermediate: {},
		},
		poisoned: make(map[ledger.Scope]bool),
	}
	m.cfg.Store(cfg)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the active configuration snapshot.
func (m *Manager) Config() *config.Config {
	return m.cfg.Load()
}

// SetConfig replaces the active configuration. The new configuration must
// not be mutated after being handed over.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.cfg.Store(cfg)
}

// State derives the hierarchy state from the ledger.
func (m *Manager) State() State {
	if !m.store.HasScope(ledger.ScopeRoot) {
		return StateUninitialized
	}
	if !m.store.HasScope(ledger.ScopeIntermediate) {
		return StateRootReady
	}
	return StateIntermediateReady
}

// InitWorkspace creates the directory layout, persists the configuration and
// renders the CA configuration templates into conf/.
func (m *Manager) InitWorkspace() error {
	cfg := m.cfg.Load()

	if err := m.layout.Ensure(); err != nil {
		return opErr("init", err)
	}
	if err := cfg.Save(m.layout.ConfigPath()); err != nil {
		return opErr("init", err)
	}

	common := map[string]string{
		"COUNTRY": cfg.Country,
		"STATE":   cfg.State,
		"ORG":     cfg.Organization,
	}

	rootVars := map[string]string{"ROOT_CA_DIR": m.layout.Base, "ROOT_CA_CN": cfg.RootCACN}
	for k, v := range common {
		rootVars[k] = v
	}
	if err := profile.RenderTemplateFile(profile.TemplateRootCA,
		filepath.Join(m.layout.ConfDir(), "rootca.cnf"), rootVars); err != nil {
		return opErr("init", err)
	}

	interVars := map[string]string{"INTER_CA_DIR": m.layout.Base, "INTER_CA_CN": cfg.InterCACN}
	for k, v := range common {
		interVars[k] = v
	}
	if err := profile.RenderTemplateFile(profile.TemplateIntermediate,
		filepath.Join(m.layout.ConfDir(), "intermediate.cnf"), interVars); err != nil {
		return opErr("init", err)
	}

	return nil
}

// CreateRoot creates the self-signed root CA. Only valid from Uninitialized;
// a second call fails with ErrAlreadyExists and changes nothing. The
// passphrase is mandatory: CA keys are never stored unencrypted.
func (m *Manager) CreateRoot(ctx context.Context, passphrase []byte) (*ledger.ScopeInfo, error) {
	const op = "createRoot"

	if len(passphrase) == 0 {
		return nil, opErr(op, fmt.Errorf("root key passphrase is required: %w", ErrInvalidRequest))
	}

	m.mu[ledger.ScopeRoot].Lock()
	defer m.mu[ledger.ScopeRoot].Unlock()

	if err := m.checkScope(ledger.ScopeRoot); err != nil {
		return nil, opErr(op, err)
	}
	if m.store.HasScope(ledger.ScopeRoot) {
		return nil, opErr(op, fmt.Errorf("root CA: %w", ErrAlreadyExists))
	}

	serial, err := m.store.NextSerial(ledger.ScopeRoot)
	if err != nil {
		m.poisonIf(ledger.ScopeRoot, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}

	cfg := m.cfg.Load()
	now := m.now()
	sctx, cancel := m.signingCtx(ctx)
	defer cancel()

	art, err := m.signer.CreateCA(sctx, signer.CARequest{
		KeyName:    "rootca",
		Passphrase: passphrase,
		Subject:    caSubject(cfg, cfg.RootCACN),
		Serial:     serial,
		NotBefore:  now,
		NotAfter:   now.AddDate(0, 0, cfg.RootCADays),
		MaxPathLen: -1,
	})
	if err != nil {
		return nil, opErrSerial(op, serial, m.mapSignerErr(ledger.ScopeRoot, "private/rootca.key.pem", err))
	}

	certPath := filepath.Join("certs", "rootca.cert.pem")
	if err := m.writeArtifact(certPath, art.CertPEM); err != nil {
		return nil, opErr(op, err)
	}

	info := ledger.ScopeInfo{
		Scope:        ledger.ScopeRoot,
		Subject:      cfg.RootCACN,
		ValidityDays: cfg.RootCADays,
		KeyHandle:    art.KeyHandle,
		CertPath:     certPath,
		CreatedAt:    now.UTC(),
	}
	if err := m.store.CreateScope(info); err != nil {
		m.poisonIf(ledger.ScopeRoot, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}

	if err := m.log.CACreated(string(ledger.ScopeRoot), info.Subject, certPath); err != nil {
		return nil, opErr(op, err)
	}
	return &info, nil
}

// CreateIntermediate creates the intermediate CA signed by the root. Only
// valid from RootReady.
func (m *Manager) CreateIntermediate(ctx context.Context, rootPassphrase, passphrase []byte) (*ledger.ScopeInfo, error) {
	const op = "createIntermediate"

	if len(rootPassphrase) == 0 {
		return nil, opErr(op, fmt.Errorf("root key passphrase is required: %w", ErrInvalidRequest))
	}
	if len(passphrase) == 0 {
		return nil, opErr(op, fmt.Errorf("intermediate key passphrase is required: %w", ErrInvalidRequest))
	}

	m.mu[ledger.ScopeRoot].Lock()
	defer m.mu[ledger.ScopeRoot].Unlock()

	if err := m.checkScope(ledger.ScopeRoot); err != nil {
		return nil, opErr(op, err)
	}

	rootScope, err := m.store.GetScope(ledger.ScopeRoot)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, opErr(op, fmt.Errorf("no root CA: %w", ErrHierarchyNotReady))
		}
		m.poisonIf(ledger.ScopeRoot, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}
	if m.store.HasScope(ledger.ScopeIntermediate) {
		return nil, opErr(op, fmt.Errorf("intermediate CA: %w", ErrAlreadyExists))
	}

	rootCert, err := m.readArtifact(rootScope.CertPath)
	if err != nil {
		return nil, opErr(op, err)
	}

	// The intermediate certificate is issued by the root, so its serial
	// comes from the root scope counter.
	serial, err := m.store.NextSerial(ledger.ScopeRoot)
	if err != nil {
		m.poisonIf(ledger.ScopeRoot, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}

	cfg := m.cfg.Load()
	now := m.now()
	sctx, cancel := m.signingCtx(ctx)
	defer cancel()

	art, err := m.signer.CreateCA(sctx, signer.CARequest{
		KeyName:    "interca",
		Passphrase: passphrase,
		Subject:    caSubject(cfg, cfg.InterCACN),
		Serial:     serial,
		NotBefore:  now,
		NotAfter:   now.AddDate(0, 0, cfg.InterCADays),
		MaxPathLen: 0,
		Issuer: &signer.Issuer{
			CertPEM:    rootCert,
			KeyHandle:  rootScope.KeyHandle,
			Passphrase: rootPassphrase,
		},
	})
	if err != nil {
		return nil, opErrSerial(op, serial, m.mapSignerErr(ledger.ScopeRoot, rootScope.KeyHandle, err))
	}
	if err := m.log.KeyAccessed(string(ledger.ScopeRoot), rootScope.KeyHandle); err != nil {
		return nil, opErr(op, err)
	}

	certPath := filepath.Join("certs", "interca.cert.pem")
	if err := m.writeArtifact(certPath, art.CertPEM); err != nil {
		return nil, opErr(op, err)
	}

	info := ledger.ScopeInfo{
		Scope:        ledger.ScopeIntermediate,
		Subject:      cfg.InterCACN,
		ValidityDays: cfg.InterCADays,
		KeyHandle:    art.KeyHandle,
		CertPath:     certPath,
		CreatedAt:    now.UTC(),
	}
	if err := m.store.CreateScope(info); err != nil {
		m.poisonIf(ledger.ScopeIntermediate, err)
		return nil, opErr(op, m.mapLedgerErr(err))
	}

	if err := m.log.CACreated(string(ledger.ScopeIntermediate), info.Subject, certPath); err != nil {
		return nil, opErr(op, err)
	}
	return &info, nil
}

func caSubject(cfg *config.Config, cn string) pkix.Name {
	return pkix.Name{
		Country:      []string{cfg.Country},
		Province:     []string{cfg.State},
		Locality:     []string{cfg.Locality},
		Organization: []string{cfg.Organization},
		CommonName:   cn,
	}
}

func (m *Manager) signingCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.Load().SigningTimeout)
}

// mapSignerErr translates a signing service failure into the error taxonomy.
// A wrong passphrase additionally lands in the audit log as AUTH_FAILED.
func (m *Manager) mapSignerErr(scope ledger.Scope, keyHandle string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrSigningTimeout, err)
	case errors.Is(err, signer.ErrPassphrase):
		// Best effort: the operation already failed.
		_ = m.log.AuthFailed(string(scope), keyHandle, "bad passphrase")
		return fmt.Errorf("%w: %v", ErrSigningFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
}

// mapLedgerErr translates ledger sentinels into the error taxonomy.
func (m *Manager) mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, ledger.ErrExists):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, ledger.ErrAlreadyRevoked):
		return fmt.Errorf("%w: %v", ErrAlreadyRevoked, err)
	case errors.Is(err, ledger.ErrCorrupt):
		return fmt.Errorf("%w: %v", ErrLedgerCorrupt, err)
	default:
		return err
	}
}

// poisonIf marks a scope unwritable after a corruption error.
func (m *Manager) poisonIf(scope ledger.Scope, err error) {
	if !errors.Is(err, ledger.ErrCorrupt) {
		return
	}
	m.poisonMu.Lock()
	m.poisoned[scope] = true
	m.poisonMu.Unlock()
}

// checkScope refuses writes on a poisoned scope.
func (m *Manager) checkScope(scope ledger.Scope) error {
	m.poisonMu.Lock()
	defer m.poisonMu.Unlock()
	if m.poisoned[scope] {
		return fmt.Errorf("scope %s poisoned: %w", scope, ErrLedgerCorrupt)
	}
	return nil
}

func (m *Manager) writeArtifact(rel string, data []byte) error {
	abs := filepath.Join(m.layout.Base, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0644)
}

func (m *Manager) readArtifact(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(m.layout.Base, rel))
}

// safeName sanitizes a common name for use in file names.
func safeName(cn string) string {
	cn = strings.ReplaceAll(cn, "*", "wildcard")
	return strings.ReplaceAll(cn, "/", "_")
}
