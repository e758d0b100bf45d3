package profile

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinServer(t *testing.T) {
	p, err := Builtin(TypeServer)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, p.X509KeyUsage())
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, p.X509ExtKeyUsage())
}

func TestBuiltinClient(t *testing.T) {
	p, err := Builtin(TypeClient)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, x509.KeyUsageDigitalSignature, p.X509KeyUsage())
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, p.X509ExtKeyUsage())
}

func TestBuiltinUnknownType(t *testing.T) {
	_, err := Builtin(CertType("email"))
	require.Error(t, err)
}

func TestCertTypeValid(t *testing.T) {
	assert.True(t, TypeServer.Valid())
	assert.True(t, TypeClient.Valid())
	assert.False(t, CertType("ca").Valid())
}

func TestValidateRejectsUnknownUsage(t *testing.T) {
	p := &Profile{
		Name:     "bad",
		KeyUsage: []string{"quantumSignature"},
	}
	require.Error(t, p.Validate())
}

func TestLoadProfileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intranet-server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: intranet-server
description: internal TLS server certificate
key_usage: [digitalSignature, keyEncipherment]
ext_key_usage: [serverAuth]
`), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "intranet-server", p.Name)
	assert.Contains(t, p.ExtKeyUsage, "serverAuth")
}

func TestRender(t *testing.T) {
	out, err := Render("CN = {{CERT_CN}}\nC = {{COUNTRY}}\n", map[string]string{
		"CERT_CN": "example.local",
		"COUNTRY": "US",
	})
	require.NoError(t, err)
	assert.Equal(t, "CN = example.local\nC = US\n", out)
}

func TestRenderUnresolvedVariable(t *testing.T) {
	_, err := Render("CN = {{CERT_CN}}", map[string]string{"COUNTRY": "US"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CERT_CN")
}

func TestRenderTemplateRootCA(t *testing.T) {
	out, err := RenderTemplate(TemplateRootCA, map[string]string{
		"ROOT_CA_DIR": "/tmp/ca/root",
		"ROOT_CA_CN":  "Root CA test.local",
		"COUNTRY":     "US",
		"STATE":       "California",
		"ORG":         "Local Development CA",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "dir               = /tmp/ca/root")
	assert.Contains(t, out, "CN = Root CA test.local")
	assert.False(t, strings.Contains(out, "{{"))
}

func TestRenderTemplateFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "conf", "csr_example.cnf")
	err := RenderTemplateFile(TemplateCSR, out, map[string]string{
		"CERT_CN": "example.local",
		"COUNTRY": "US",
		"STATE":   "California",
		"ORG":     "Local Development CA",
		"SAN_DNS": "example.local",
		"SAN_IP":  "127.0.0.1",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DNS.1 = example.local")
	assert.Contains(t, string(data), "IP.1  = 127.0.0.1")
}

func TestRenderTemplateUnknownName(t *testing.T) {
	_, err := RenderTemplate("nonexistent.template", nil)
	require.Error(t, err)
}
