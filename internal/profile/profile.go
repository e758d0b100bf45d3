// Package profile provides certificate profiles and the configuration
// template renderer.
//
// A profile maps a certificate type (server or client) to the X.509 extension
// set the issued certificate carries. Profiles can be loaded from YAML to
// override the built-ins.
package profile

import (
	"crypto/x509"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CertType selects the extension profile for an end-entity certificate.
type CertType string

const (
	TypeServer CertType = "server"
	TypeClient CertType = "client"
)

// Valid reports whether t names a known certificate type.
func (t CertType) Valid() bool {
	return t == TypeServer || t == TypeClient
}

// Profile defines the extension policy for one certificate type. Validity is
// not part of the profile: it comes from the workspace configuration.
type Profile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	KeyUsage    []string `yaml:"key_usage"`
	ExtKeyUsage []string `yaml:"ext_key_usage"`
}

var keyUsageNames = map[string]x509.KeyUsage{
	"digitalSignature": x509.KeyUsageDigitalSignature,
	"keyEncipherment":  x509.KeyUsageKeyEncipherment,
	"keyAgreement":     x509.KeyUsageKeyAgreement,
	"certSign":         x509.KeyUsageCertSign,
	"crlSign":          x509.KeyUsageCRLSign,
}

var extKeyUsageNames = map[string]x509.ExtKeyUsage{
	"serverAuth": x509.ExtKeyUsageServerAuth,
	"clientAuth": x509.ExtKeyUsageClientAuth,
}

// Validate checks the profile configuration.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	for _, ku := range p.KeyUsage {
		if _, ok := keyUsageNames[ku]; !ok {
			return fmt.Errorf("profile %s: unknown key usage %q", p.Name, ku)
		}
	}
	for _, eku := range p.ExtKeyUsage {
		if _, ok := extKeyUsageNames[eku]; !ok {
			return fmt.Errorf("profile %s: unknown extended key usage %q", p.Name, eku)
		}
	}
	return nil
}

// X509KeyUsage resolves the profile's key usage names.
func (p *Profile) X509KeyUsage() x509.KeyUsage {
	var usage x509.KeyUsage
	for _, name := range p.KeyUsage {
		usage |= keyUsageNames[name]
	}
	return usage
}

// X509ExtKeyUsage resolves the profile's extended key usage names.
func (p *Profile) X509ExtKeyUsage() []x509.ExtKeyUsage {
	ekus := make([]x509.ExtKeyUsage, 0, len(p.ExtKeyUsage))
	for _, name := range p.ExtKeyUsage {
		ekus = append(ekus, extKeyUsageNames[name])
	}
	return ekus
}

// Builtin returns the built-in profile for a certificate type.
func Builtin(t CertType) (*Profile, error) {
	switch t {
	case TypeServer:
		return &Profile{
			Name:        "server",
			Description: "TLS server certificate",
			KeyUsage:    []string{"digitalSignature", "keyEncipherment"},
			ExtKeyUsage: []string{"serverAuth"},
		}, nil
	case TypeClient:
		return &Profile{
			Name:        "client",
			Description: "TLS client certificate",
			KeyUsage:    []string{"digitalSignature"},
			ExtKeyUsage: []string{"clientAuth"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown certificate type %q", t)
	}
}

// Load reads a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
