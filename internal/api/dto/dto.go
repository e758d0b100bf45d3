// Package dto defines the REST API request and response types.
package dto

import "time"

// APIError is the error payload returned by all endpoints.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// StatusResponse is the generic success envelope.
type StatusResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// InitRequest configures the workspace. Omitted fields keep their defaults.
type InitRequest struct {
	Country      string `json:"country,omitempty"`
	State        string `json:"state,omitempty"`
	Locality     string `json:"locality,omitempty"`
	Organization string `json:"organization,omitempty"`
	RootCACN     string `json:"root_ca_cn,omitempty"`
	InterCACN    string `json:"inter_ca_cn,omitempty"`
}

// CreateRootRequest creates the root CA.
type CreateRootRequest struct {
	Passphrase string `json:"passphrase"`
}

// CreateIntermediateRequest creates the intermediate CA.
type CreateIntermediateRequest struct {
	RootPassphrase string `json:"root_passphrase"`
	Passphrase     string `json:"passphrase"`
}

// CSRRequest generates a key pair and certificate signing request.
type CSRRequest struct {
	CommonName string `json:"common_name"`
	CertType   string `json:"cert_type,omitempty"` // server (default) or client
	SANDNS     string `json:"san_dns,omitempty"`
	SANIP      string `json:"san_ip,omitempty"`
	Passphrase string `json:"passphrase,omitempty"` // leaf key passphrase
}

// CSRResponse reports a generated CSR.
type CSRResponse struct {
	CSRPath   string `json:"csr_path"`
	KeyHandle string `json:"key_handle"`
	CSRPEM    string `json:"csr_pem"`
}

// SignRequest issues a certificate from a CSR. Either the PEM text or the
// name of a CSR stored under csr/ must be given.
type SignRequest struct {
	CSRPEM      string `json:"csr_pem,omitempty"`
	CSRFilename string `json:"csr_filename,omitempty"`
	CertType    string `json:"cert_type,omitempty"`
	Passphrase  string `json:"passphrase"` // intermediate CA key passphrase
}

// RevokeRequest revokes an issued certificate by serial.
type RevokeRequest struct {
	Serial     uint64 `json:"serial"`
	Passphrase string `json:"passphrase"`
	Reason     string `json:"reason,omitempty"`
}

// UpdateCRLRequest regenerates the CRL.
type UpdateCRLRequest struct {
	Passphrase string `json:"passphrase"`
}

// Certificate is the read model of an issued certificate.
type Certificate struct {
	Serial       uint64     `json:"serial"`
	Scope        string     `json:"scope"`
	Subject      string     `json:"subject"`
	NotBefore    time.Time  `json:"not_before"`
	NotAfter     time.Time  `json:"not_after"`
	Status       string     `json:"status"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	ArtifactPath string     `json:"artifact_path"`
}

// CertificateList is the response of the list endpoint.
type CertificateList struct {
	Certificates []Certificate `json:"certificates"`
	Total        int           `json:"total"`
}

// CRL reports a generated revocation list.
type CRL struct {
	Number       uint64    `json:"number"`
	Path         string    `json:"path"`
	RevokedCount int       `json:"revoked_count"`
	ThisUpdate   time.Time `json:"this_update"`
	NextUpdate   time.Time `json:"next_update"`
}

// RevokeResponse reports a revocation. CRLWarning is set when the
// revocation committed but the CRL could not be regenerated.
type RevokeResponse struct {
	Certificate Certificate `json:"certificate"`
	CRL         *CRL        `json:"crl,omitempty"`
	CRLWarning  string      `json:"crl_warning,omitempty"`
}

// HealthResponse is returned by /health and /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	State   string `json:"state,omitempty"`
}
