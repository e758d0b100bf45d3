package ca

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srikantkt/certmgr/internal/audit"
	"github.com/srikantkt/certmgr/internal/config"
	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/profile"
	"github.com/srikantkt/certmgr/internal/signer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	m      *Manager
	store  *ledger.Store
	layout config.Layout
	cfg    *config.Config
	clk    *fakeClock
}

func newTestEnv(t *testing.T, svc signer.Service) *testEnv {
	t.Helper()

	layout := config.Layout{Base: t.TempDir()}
	require.NoError(t, layout.Ensure())

	cfg := config.Default("test.local")
	cfg.SigningTimeout = 5 * time.Second

	store, err := ledger.Open(layout.LedgerPath(), ledger.WithSerialBase(cfg.SerialBase))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if svc == nil {
		svc = signer.NewSoftware(layout.Base)
	}

	clk := newFakeClock(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	m := NewManager(cfg, layout, store, svc, WithClock(clk.Now))
	return &testEnv{m: m, store: store, layout: layout, cfg: cfg, clk: clk}
}

func (e *testEnv) buildHierarchy(t *testing.T) {
	t.Helper()
	_, err := e.m.CreateRoot(context.Background(), []byte("rootpass"))
	require.NoError(t, err)
	_, err = e.m.CreateIntermediate(context.Background(), []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)
}

func (e *testEnv) newCSR(t *testing.T, cn string) []byte {
	t.Helper()
	res, err := e.m.CreateCertRequest(context.Background(), CSRRequest{
		CommonName: cn,
		Type:       profile.TypeServer,
	})
	require.NoError(t, err)
	return res.CSRPEM
}

func (e *testEnv) issue(t *testing.T, cn string) *CertificateInfo {
	t.Helper()
	info, err := e.m.Issue(context.Background(), IssueRequest{
		CSRPEM:     e.newCSR(t, cn),
		Type:       profile.TypeServer,
		Passphrase: []byte("interpass"),
	})
	require.NoError(t, err)
	return info
}

func TestStateMachineOrdering(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, e.m.State())

	// Everything below root creation is refused before the hierarchy exists.
	_, err := e.m.CreateIntermediate(ctx, []byte("r"), []byte("i"))
	require.ErrorIs(t, err, ErrHierarchyNotReady)

	_, err = e.m.Issue(ctx, IssueRequest{CSRPEM: mustCSR(t, e, "x.local"), Type: profile.TypeServer})
	require.ErrorIs(t, err, ErrHierarchyNotReady)

	_, err = e.m.Revoke(ctx, 1000, []byte("i"), "")
	require.ErrorIs(t, err, ErrHierarchyNotReady)

	_, err = e.m.UpdateCRL(ctx, []byte("i"))
	require.ErrorIs(t, err, ErrHierarchyNotReady)

	_, err = e.m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)
	assert.Equal(t, StateRootReady, e.m.State())

	// Issuance still needs the intermediate.
	_, err = e.m.Issue(ctx, IssueRequest{CSRPEM: mustCSR(t, e, "y.local"), Type: profile.TypeServer})
	require.ErrorIs(t, err, ErrHierarchyNotReady)

	_, err = e.m.CreateIntermediate(ctx, []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)
	assert.Equal(t, StateIntermediateReady, e.m.State())
}

// mustCSR builds a CSR without requiring hierarchy state.
func mustCSR(t *testing.T, e *testEnv, cn string) []byte {
	t.Helper()
	res, err := e.m.CreateCertRequest(context.Background(), CSRRequest{
		CommonName: cn,
		Type:       profile.TypeServer,
	})
	require.NoError(t, err)
	return res.CSRPEM
}

func TestCreateRootTwiceFails(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := e.m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)

	_, err = e.m.CreateRoot(ctx, []byte("otherpass"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	// State and scope metadata are untouched by the failed second call.
	assert.Equal(t, StateRootReady, e.m.State())
	scope, err := e.store.GetScope(ledger.ScopeRoot)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, scope.CreatedAt)
}

func TestCreateCARequiresPassphrase(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := e.m.CreateRoot(ctx, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.m.CreateRoot(ctx, []byte{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, StateUninitialized, e.m.State())

	// No key material was written for the refused requests.
	entries, err := os.ReadDir(e.layout.PrivateDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	root, err := e.m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)

	_, err = e.m.CreateIntermediate(ctx, nil, []byte("interpass"))
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.m.CreateIntermediate(ctx, []byte("rootpass"), nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, StateRootReady, e.m.State())

	// The root key on disk is passphrase-protected.
	keyPEM, err := os.ReadFile(filepath.Join(e.layout.Base, root.KeyHandle))
	require.NoError(t, err)
	assert.Contains(t, string(keyPEM), "ENCRYPTED")
}

func TestIssueValidityFromConfig(t *testing.T) {
	e := newTestEnv(t, nil)
	e.cfg.CertDays = 90
	e.buildHierarchy(t)

	info := e.issue(t, "short.local")
	assert.WithinDuration(t, e.clk.Now().AddDate(0, 0, 90), info.NotAfter, time.Minute)
}

func TestCreateIntermediateTwiceFails(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)

	_, err := e.m.CreateIntermediate(context.Background(), []byte("rootpass"), []byte("interpass"))
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, StateIntermediateReady, e.m.State())
}

func TestCreateIntermediateWrongRootPassphrase(t *testing.T) {
	e := newTestEnv(t, nil)
	_, err := e.m.CreateRoot(context.Background(), []byte("rootpass"))
	require.NoError(t, err)

	_, err = e.m.CreateIntermediate(context.Background(), []byte("wrong"), []byte("interpass"))
	require.ErrorIs(t, err, ErrSigningFailed)

	// Failed signing must not create the scope.
	assert.Equal(t, StateRootReady, e.m.State())
}

func TestIssueFirstSerialIsBase(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)

	info := e.issue(t, "example.local")
	assert.Equal(t, uint64(1000), info.Serial)
	assert.Equal(t, "example.local", info.Subject)
	assert.Equal(t, DisplayValid, info.Status)

	// The artifact exists and parses as a certificate.
	data, err := os.ReadFile(filepath.Join(e.layout.Base, info.ArtifactPath))
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), cert.SerialNumber.Uint64())
}

func TestIssueInvalidRequests(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	_, err := e.m.Issue(ctx, IssueRequest{CSRPEM: []byte("junk"), Type: profile.TypeServer})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.m.Issue(ctx, IssueRequest{CSRPEM: e.newCSR(t, "a.local"), Type: profile.CertType("email")})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.m.CreateCertRequest(ctx, CSRRequest{CommonName: "", Type: profile.TypeServer})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIssueWrongPassphraseBurnsSerial(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	_, err := e.m.Issue(ctx, IssueRequest{
		CSRPEM:     e.newCSR(t, "fail.local"),
		Type:       profile.TypeServer,
		Passphrase: []byte("wrong"),
	})
	require.ErrorIs(t, err, ErrSigningFailed)

	// Serial 1000 was burned; no record exists for it and it is never reused.
	_, err = e.m.Get(ledger.ScopeIntermediate, 1000)
	require.ErrorIs(t, err, ErrNotFound)

	info := e.issue(t, "ok.local")
	assert.Equal(t, uint64(1001), info.Serial)
}

func TestConcurrentIssueUniqueSerials(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)

	const n = 10
	csrs := make([][]byte, n)
	for i := range csrs {
		csrs[i] = e.newCSR(t, fmt.Sprintf("host%d.local", i))
	}

	results := make(chan uint64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(csr []byte) {
			info, err := e.m.Issue(context.Background(), IssueRequest{
				CSRPEM:     csr,
				Type:       profile.TypeServer,
				Passphrase: []byte("interpass"),
			})
			if err != nil {
				errs <- err
				return
			}
			results <- info.Serial
		}(csrs[i])
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("issue failed: %v", err)
		case serial := <-results:
			assert.False(t, seen[serial], "serial %d issued twice", serial)
			seen[serial] = true
		}
	}
	assert.Len(t, seen, n)
}

func TestRevokeAndCRL(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	info := e.issue(t, "example.local")

	res, err := e.m.Revoke(ctx, info.Serial, []byte("interpass"), "key compromise")
	require.NoError(t, err)
	require.NoError(t, res.CRLErr)
	assert.Equal(t, DisplayRevoked, res.Record.Status)
	require.NotNil(t, res.Record.RevokedAt)
	require.NotNil(t, res.CRL)
	assert.Equal(t, uint64(1000), res.CRL.Number)
	assert.Equal(t, 1, res.CRL.RevokedCount)

	// The CRL artifact carries the revoked serial.
	data, err := os.ReadFile(filepath.Join(e.layout.Base, res.CRL.Path))
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	crl, err := x509.ParseRevocationList(block.Bytes)
	require.NoError(t, err)
	require.Len(t, crl.RevokedCertificateEntries, 1)
	assert.Equal(t, info.Serial, crl.RevokedCertificateEntries[0].SerialNumber.Uint64())

	// List reflects the revocation.
	list, err := e.m.List(ledger.ScopeIntermediate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DisplayRevoked, list[0].Status)

	// Regenerating bumps the CRL number by one.
	next, err := e.m.UpdateCRL(ctx, []byte("interpass"))
	require.NoError(t, err)
	assert.Equal(t, res.CRL.Number+1, next.Number)
}

func TestRevokeTwiceFails(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	info := e.issue(t, "example.local")
	_, err := e.m.Revoke(ctx, info.Serial, []byte("interpass"), "")
	require.NoError(t, err)

	_, err = e.m.Revoke(ctx, info.Serial, []byte("interpass"), "")
	require.ErrorIs(t, err, ErrAlreadyRevoked)

	// Timestamp from the first revocation survives.
	got, err := e.m.Get(ledger.ScopeIntermediate, info.Serial)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
}

func TestRevokeUnknownSerial(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)

	_, err := e.m.Revoke(context.Background(), 4242, []byte("interpass"), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpiryComputedOnRead(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)

	info := e.issue(t, "example.local")
	assert.Equal(t, DisplayValid, info.Status)

	// Move past notAfter: same stored record, different display status.
	e.clk.Advance(time.Duration(e.cfg.CertDays+1) * 24 * time.Hour)

	got, err := e.m.Get(ledger.ScopeIntermediate, info.Serial)
	require.NoError(t, err)
	assert.Equal(t, DisplayExpired, got.Status)

	rec, err := e.store.GetRecord(ledger.ScopeIntermediate, info.Serial)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusValid, rec.Status)
}

func TestRevokedWinsOverExpired(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	info := e.issue(t, "example.local")
	_, err := e.m.Revoke(ctx, info.Serial, []byte("interpass"), "")
	require.NoError(t, err)

	e.clk.Advance(time.Duration(e.cfg.CertDays+1) * 24 * time.Hour)

	got, err := e.m.Get(ledger.ScopeIntermediate, info.Serial)
	require.NoError(t, err)
	assert.Equal(t, DisplayRevoked, got.Status)
}

func TestEndToEndLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, e.m.InitWorkspace())
	for _, f := range []string{"rootca.cnf", "intermediate.cnf", "certmgr.yaml"} {
		_, err := os.Stat(filepath.Join(e.layout.ConfDir(), f))
		require.NoError(t, err, f)
	}

	root, err := e.m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)
	assert.Equal(t, 3650, root.ValidityDays)

	inter, err := e.m.CreateIntermediate(ctx, []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)
	assert.Equal(t, 1825, inter.ValidityDays)

	// The intermediate chains to the root.
	rootPEM, err := os.ReadFile(filepath.Join(e.layout.Base, root.CertPath))
	require.NoError(t, err)
	interPEM, err := os.ReadFile(filepath.Join(e.layout.Base, inter.CertPath))
	require.NoError(t, err)
	rootBlock, _ := pem.Decode(rootPEM)
	interBlock, _ := pem.Decode(interPEM)
	rootCert, err := x509.ParseCertificate(rootBlock.Bytes)
	require.NoError(t, err)
	interCert, err := x509.ParseCertificate(interBlock.Bytes)
	require.NoError(t, err)
	require.NoError(t, interCert.CheckSignatureFrom(rootCert))

	info := e.issue(t, "example.local")
	assert.Equal(t, uint64(1000), info.Serial)
	assert.WithinDuration(t, e.clk.Now().AddDate(0, 0, 365), info.NotAfter, time.Minute)

	res, err := e.m.Revoke(ctx, info.Serial, []byte("interpass"), "superseded")
	require.NoError(t, err)
	require.NoError(t, res.CRLErr)
	assert.Equal(t, uint64(1000), res.CRL.Number)

	current, err := e.m.CRLNumber(ledger.ScopeIntermediate)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), current)
}

func TestAuditTrailAcrossLifecycle(t *testing.T) {
	layoutBase := t.TempDir()
	layout := config.Layout{Base: layoutBase}
	require.NoError(t, layout.Ensure())

	w, err := audit.NewFileWriter(layout.AuditLogPath())
	require.NoError(t, err)

	cfg := config.Default("test.local")
	store, err := ledger.Open(layout.LedgerPath(), ledger.WithSerialBase(cfg.SerialBase))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(cfg, layout, store, signer.NewSoftware(layoutBase), WithAuditLog(audit.NewLog(w)))
	ctx := context.Background()

	_, err = m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)
	_, err = m.CreateIntermediate(ctx, []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)

	csr, err := m.CreateCertRequest(ctx, CSRRequest{CommonName: "example.local", Type: profile.TypeServer})
	require.NoError(t, err)
	info, err := m.Issue(ctx, IssueRequest{CSRPEM: csr.CSRPEM, Type: profile.TypeServer, Passphrase: []byte("interpass")})
	require.NoError(t, err)
	_, err = m.Revoke(ctx, info.Serial, []byte("interpass"), "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	count, err := audit.VerifyChain(layout.AuditLogPath())
	require.NoError(t, err)
	// CA_CREATED x2, KEY_ACCESSED x2 (intermediate signing, issuance),
	// CERT_ISSUED, CERT_REVOKED, CRL_GENERATED.
	assert.Equal(t, 7, count)
}

// stubSigner wraps the software service with injectable failures.
type stubSigner struct {
	signer.Service
	signErr   error
	signDelay bool
	crlErr    error
}

func (s *stubSigner) Sign(ctx context.Context, req signer.SignRequest) (*signer.Artifact, error) {
	if s.signDelay {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.signErr != nil {
		return nil, s.signErr
	}
	return s.Service.Sign(ctx, req)
}

func (s *stubSigner) GenerateCRL(ctx context.Context, req signer.CRLRequest) (*signer.Artifact, error) {
	if s.crlErr != nil {
		return nil, s.crlErr
	}
	return s.Service.GenerateCRL(ctx, req)
}

func TestIssueSigningTimeout(t *testing.T) {
	base := t.TempDir()
	stub := &stubSigner{Service: signer.NewSoftware(base), signDelay: true}

	layout := config.Layout{Base: base}
	require.NoError(t, layout.Ensure())
	cfg := config.Default("test.local")
	cfg.SigningTimeout = 50 * time.Millisecond

	store, err := ledger.Open(layout.LedgerPath(), ledger.WithSerialBase(cfg.SerialBase))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(cfg, layout, store, stub)
	ctx := context.Background()
	_, err = m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)
	_, err = m.CreateIntermediate(ctx, []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)

	csr, err := m.CreateCertRequest(ctx, CSRRequest{CommonName: "slow.local", Type: profile.TypeServer})
	require.NoError(t, err)

	_, err = m.Issue(ctx, IssueRequest{CSRPEM: csr.CSRPEM, Type: profile.TypeServer, Passphrase: []byte("interpass")})
	require.ErrorIs(t, err, ErrSigningTimeout)

	// The burned serial left no record behind.
	_, err = m.Get(ledger.ScopeIntermediate, 1000)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRevocationDurableWhenCRLFails(t *testing.T) {
	base := t.TempDir()
	stub := &stubSigner{Service: signer.NewSoftware(base), crlErr: errors.New("hsm offline")}

	layout := config.Layout{Base: base}
	require.NoError(t, layout.Ensure())
	cfg := config.Default("test.local")

	store, err := ledger.Open(layout.LedgerPath(), ledger.WithSerialBase(cfg.SerialBase))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(cfg, layout, store, stub)
	ctx := context.Background()
	_, err = m.CreateRoot(ctx, []byte("rootpass"))
	require.NoError(t, err)
	_, err = m.CreateIntermediate(ctx, []byte("rootpass"), []byte("interpass"))
	require.NoError(t, err)

	csr, err := m.CreateCertRequest(ctx, CSRRequest{CommonName: "example.local", Type: profile.TypeServer})
	require.NoError(t, err)
	info, err := m.Issue(ctx, IssueRequest{CSRPEM: csr.CSRPEM, Type: profile.TypeServer, Passphrase: []byte("interpass")})
	require.NoError(t, err)

	res, err := m.Revoke(ctx, info.Serial, []byte("interpass"), "")
	require.NoError(t, err)
	require.Error(t, res.CRLErr)
	assert.ErrorIs(t, res.CRLErr, ErrSigningFailed)

	// The revocation committed despite the CRL failure.
	got, err := m.Get(ledger.ScopeIntermediate, info.Serial)
	require.NoError(t, err)
	assert.Equal(t, DisplayRevoked, got.Status)
}

func TestListAscendingWithMixedStatus(t *testing.T) {
	e := newTestEnv(t, nil)
	e.buildHierarchy(t)
	ctx := context.Background()

	a := e.issue(t, "a.local")
	b := e.issue(t, "b.local")
	c := e.issue(t, "c.local")

	_, err := e.m.Revoke(ctx, b.Serial, []byte("interpass"), "")
	require.NoError(t, err)

	list, err := e.m.List(ledger.ScopeIntermediate)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint64{a.Serial, b.Serial, c.Serial}, []uint64{list[0].Serial, list[1].Serial, list[2].Serial})
	assert.Equal(t, DisplayValid, list[0].Status)
	assert.Equal(t, DisplayRevoked, list[1].Status)
	assert.Equal(t, DisplayValid, list[2].Status)
}
