package audit

import "strconv"

// Log wraps a Writer with typed helpers for the CA operations. A failed
// write is returned to the caller; the engine treats it as an operation
// failure.
type Log struct {
	w Writer
}

// NewLog returns a Log writing to w. A nil w discards events.
func NewLog(w Writer) *Log {
	if w == nil {
		w = NopWriter{}
	}
	return &Log{w: w}
}

// Close closes the underlying writer.
func (l *Log) Close() error {
	return l.w.Close()
}

// CACreated records creation of a CA scope.
func (l *Log) CACreated(scope, subject, certPath string) error {
	return l.w.Write(NewEvent(EventCACreated, ResultSuccess).
		WithObject(Object{Type: "ca", Subject: subject, Path: certPath}).
		WithContext(Context{Scope: scope}))
}

// CALoaded records a CA scope being loaded for signing.
func (l *Log) CALoaded(scope, certPath string) error {
	return l.w.Write(NewEvent(EventCALoaded, ResultSuccess).
		WithObject(Object{Type: "ca", Path: certPath}).
		WithContext(Context{Scope: scope}))
}

// KeyAccessed records use of a CA private key.
func (l *Log) KeyAccessed(scope, keyHandle string) error {
	return l.w.Write(NewEvent(EventKeyAccessed, ResultSuccess).
		WithObject(Object{Type: "key", Path: keyHandle}).
		WithContext(Context{Scope: scope}))
}

// CertIssued records a successful issuance.
func (l *Log) CertIssued(scope string, serial uint64, subject, profile string) error {
	return l.w.Write(NewEvent(EventCertIssued, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: strconv.FormatUint(serial, 10), Subject: subject}).
		WithContext(Context{Scope: scope, Profile: profile}))
}

// CertRevoked records a successful revocation.
func (l *Log) CertRevoked(scope string, serial uint64, subject, reason string) error {
	return l.w.Write(NewEvent(EventCertRevoked, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: strconv.FormatUint(serial, 10), Subject: subject}).
		WithContext(Context{Scope: scope, Reason: reason}))
}

// CRLGenerated records a CRL regeneration.
func (l *Log) CRLGenerated(scope string, number uint64, path string) error {
	return l.w.Write(NewEvent(EventCRLGenerated, ResultSuccess).
		WithObject(Object{Type: "crl", Serial: strconv.FormatUint(number, 10), Path: path}).
		WithContext(Context{Scope: scope}))
}

// AuthFailed records a failed key access, typically a wrong passphrase.
func (l *Log) AuthFailed(scope, keyHandle, reason string) error {
	return l.w.Write(NewEvent(EventAuthFailed, ResultFailure).
		WithObject(Object{Type: "key", Path: keyHandle}).
		WithContext(Context{Scope: scope, Reason: reason}))
}
