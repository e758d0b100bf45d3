package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	e := NewEvent(EventCertIssued, ResultSuccess)
	require.NoError(t, e.Validate())

	e = &Event{}
	require.Error(t, e.Validate())
}

func TestFileWriterChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, w.LastHash())

	e1 := NewEvent(EventCACreated, ResultSuccess).
		WithObject(Object{Type: "ca", Subject: "CN=Test Root CA"})
	require.NoError(t, w.Write(e1))
	assert.Equal(t, GenesisHash, e1.HashPrev)
	assert.True(t, strings.HasPrefix(e1.Hash, HashPrefix))

	e2 := NewEvent(EventCertIssued, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: "1000"})
	require.NoError(t, w.Write(e2))
	assert.Equal(t, e1.Hash, e2.HashPrev)

	require.NoError(t, w.Close())

	count, err := VerifyChain(path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFileWriterResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(NewEvent(EventCACreated, ResultSuccess)))
	firstHash := w.LastHash()
	require.NoError(t, w.Close())

	w, err = NewFileWriter(path)
	require.NoError(t, err)
	assert.Equal(t, firstHash, w.LastHash())
	require.NoError(t, w.Write(NewEvent(EventCertIssued, ResultSuccess)))
	require.NoError(t, w.Close())

	count, err := VerifyChain(path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(NewEvent(EventCACreated, ResultSuccess).
		WithObject(Object{Type: "ca", Subject: "CN=Test Root CA"})))
	require.NoError(t, w.Write(NewEvent(EventCertIssued, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: "1000"})))
	require.NoError(t, w.Close())

	// Tamper with the serial in the second event.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"serial":"1000"`, `"serial":"9999"`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))

	valid, err := VerifyChain(path)
	require.Error(t, err)
	assert.Equal(t, 1, valid)
}

func TestVerifyChainEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	count, err := VerifyChain(path)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLogHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := NewFileWriter(path)
	require.NoError(t, err)

	l := NewLog(w)
	require.NoError(t, l.CACreated("root", "CN=Test Root CA", "certs/rootca.cert.pem"))
	require.NoError(t, l.CertIssued("intermediate", 1000, "CN=example.local", "server"))
	require.NoError(t, l.CertRevoked("intermediate", 1000, "CN=example.local", "unspecified"))
	require.NoError(t, l.CRLGenerated("intermediate", 1000, "crl/intermediate.crl.pem"))
	require.NoError(t, l.AuthFailed("root", "private/rootca.key.pem", "bad passphrase"))
	require.NoError(t, l.Close())

	count, err := VerifyChain(path)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)

	var last Event
	require.NoError(t, json.Unmarshal([]byte(lines[4]), &last))
	assert.Equal(t, EventAuthFailed, last.EventType)
	assert.Equal(t, ResultFailure, last.Result)
}

func TestNopWriter(t *testing.T) {
	l := NewLog(nil)
	require.NoError(t, l.CACreated("root", "CN=x", ""))
	require.NoError(t, l.Close())
}
