// Package service adapts the lifecycle engine to the REST API types.
package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/srikantkt/certmgr/internal/api/dto"
	"github.com/srikantkt/certmgr/internal/ca"
	"github.com/srikantkt/certmgr/internal/config"
	"github.com/srikantkt/certmgr/internal/ledger"
	"github.com/srikantkt/certmgr/internal/profile"
)

// CAService exposes the engine operations consumed by the handlers.
type CAService struct {
	m      *ca.Manager
	layout config.Layout
}

// New creates a CAService.
func New(m *ca.Manager, layout config.Layout) *CAService {
	return &CAService{m: m, layout: layout}
}

// State returns the hierarchy state.
func (s *CAService) State() string {
	return string(s.m.State())
}

// Init applies configuration overrides and initializes the workspace. The
// overrides go into a copy of the active configuration which is then swapped
// in, so concurrent requests keep reading a consistent snapshot.
func (s *CAService) Init(req dto.InitRequest) error {
	cfg := *s.m.Config()
	if req.Country != "" {
		cfg.Country = req.Country
	}
	if req.State != "" {
		cfg.State = req.State
	}
	if req.Locality != "" {
		cfg.Locality = req.Locality
	}
	if req.Organization != "" {
		cfg.Organization = req.Organization
	}
	if req.RootCACN != "" {
		cfg.RootCACN = req.RootCACN
	}
	if req.InterCACN != "" {
		cfg.InterCACN = req.InterCACN
	}
	s.m.SetConfig(&cfg)
	return s.m.InitWorkspace()
}

// CreateRoot creates the root CA.
func (s *CAService) CreateRoot(ctx context.Context, passphrase string) (*dto.StatusResponse, error) {
	info, err := s.m.CreateRoot(ctx, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{
		Success: true,
		Message: "root CA created",
		Data: map[string]interface{}{
			"subject":       info.Subject,
			"validity_days": info.ValidityDays,
			"cert_path":     info.CertPath,
		},
	}, nil
}

// CreateIntermediate creates the intermediate CA.
func (s *CAService) CreateIntermediate(ctx context.Context, rootPassphrase, passphrase string) (*dto.StatusResponse, error) {
	info, err := s.m.CreateIntermediate(ctx, []byte(rootPassphrase), []byte(passphrase))
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{
		Success: true,
		Message: "intermediate CA created",
		Data: map[string]interface{}{
			"subject":       info.Subject,
			"validity_days": info.ValidityDays,
			"cert_path":     info.CertPath,
		},
	}, nil
}

// CreateCSR generates a key pair and CSR.
func (s *CAService) CreateCSR(ctx context.Context, req dto.CSRRequest) (*dto.CSRResponse, error) {
	certType := profile.CertType(req.CertType)
	if req.CertType == "" {
		certType = profile.TypeServer
	}

	var dnsNames []string
	if req.SANDNS != "" {
		dnsNames = strings.Split(req.SANDNS, ",")
		for i := range dnsNames {
			dnsNames[i] = strings.TrimSpace(dnsNames[i])
		}
	}
	var ips []net.IP
	if req.SANIP != "" {
		ip := net.ParseIP(req.SANIP)
		if ip == nil {
			return nil, fmt.Errorf("bad san_ip %q: %w", req.SANIP, ca.ErrInvalidRequest)
		}
		ips = []net.IP{ip}
	}

	res, err := s.m.CreateCertRequest(ctx, ca.CSRRequest{
		CommonName: req.CommonName,
		Type:       certType,
		DNSNames:   dnsNames,
		IPs:        ips,
		Passphrase: []byte(req.Passphrase),
	})
	if err != nil {
		return nil, err
	}
	return &dto.CSRResponse{
		CSRPath:   res.CSRPath,
		KeyHandle: res.KeyHandle,
		CSRPEM:    string(res.CSRPEM),
	}, nil
}

// Sign issues a certificate from a CSR given as PEM text or as a file name
// under csr/.
func (s *CAService) Sign(ctx context.Context, req dto.SignRequest) (*dto.Certificate, error) {
	csrPEM := []byte(req.CSRPEM)
	if len(csrPEM) == 0 {
		if req.CSRFilename == "" {
			return nil, fmt.Errorf("csr_pem or csr_filename is required: %w", ca.ErrInvalidRequest)
		}
		name, err := sanitizeFilename(req.CSRFilename)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.layout.CSRDir(), name))
		if err != nil {
			return nil, fmt.Errorf("csr %s: %w", name, ca.ErrNotFound)
		}
		csrPEM = data
	}

	certType := profile.CertType(req.CertType)
	if req.CertType == "" {
		certType = profile.TypeServer
	}

	info, err := s.m.Issue(ctx, ca.IssueRequest{
		CSRPEM:     csrPEM,
		Type:       certType,
		Passphrase: []byte(req.Passphrase),
	})
	if err != nil {
		return nil, err
	}
	cert := toCert(*info)
	return &cert, nil
}

// Revoke revokes a certificate and regenerates the CRL.
func (s *CAService) Revoke(ctx context.Context, req dto.RevokeRequest) (*dto.RevokeResponse, error) {
	res, err := s.m.Revoke(ctx, req.Serial, []byte(req.Passphrase), req.Reason)
	if err != nil {
		return nil, err
	}

	resp := &dto.RevokeResponse{Certificate: toCert(*res.Record)}
	if res.CRL != nil {
		resp.CRL = toCRL(res.CRL)
	}
	if res.CRLErr != nil {
		resp.CRLWarning = res.CRLErr.Error()
	}
	return resp, nil
}

// UpdateCRL regenerates the CRL on demand.
func (s *CAService) UpdateCRL(ctx context.Context, passphrase string) (*dto.CRL, error) {
	info, err := s.m.UpdateCRL(ctx, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	return toCRL(info), nil
}

// List returns the certificates issued by the intermediate CA.
func (s *CAService) List() (*dto.CertificateList, error) {
	infos, err := s.m.List(ledger.ScopeIntermediate)
	if err != nil {
		return nil, err
	}
	list := &dto.CertificateList{
		Certificates: make([]dto.Certificate, 0, len(infos)),
		Total:        len(infos),
	}
	for _, info := range infos {
		list.Certificates = append(list.Certificates, toCert(info))
	}
	return list, nil
}

// Config returns the active configuration snapshot.
func (s *CAService) Config() *config.Config {
	return s.m.Config()
}

// ResolveDownload maps a bare file name to an artifact path, searching the
// certificate, CSR and CRL directories.
func (s *CAService) ResolveDownload(filename string) (string, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	for _, dir := range []string{s.layout.CertsDir(), s.layout.CSRDir(), s.layout.CRLDir()} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("file %s: %w", name, ca.ErrNotFound)
}

// sanitizeFilename rejects anything that could escape the artifact dirs.
func sanitizeFilename(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("bad filename %q: %w", name, ca.ErrInvalidRequest)
	}
	return name, nil
}

func toCert(info ca.CertificateInfo) dto.Certificate {
	return dto.Certificate{
		Serial:       info.Serial,
		Scope:        string(info.Scope),
		Subject:      info.Subject,
		NotBefore:    info.NotBefore,
		NotAfter:     info.NotAfter,
		Status:       string(info.Status),
		RevokedAt:    info.RevokedAt,
		ArtifactPath: info.ArtifactPath,
	}
}

func toCRL(info *ca.CRLInfo) *dto.CRL {
	return &dto.CRL{
		Number:       info.Number,
		Path:         info.Path,
		RevokedCount: info.RevokedCount,
		ThisUpdate:   info.ThisUpdate,
		NextUpdate:   info.NextUpdate,
	}
}
