package ca

import (
	"errors"
	"fmt"
)

// Sentinel errors for CA operations.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrInvalidRequest indicates a malformed or incomplete request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrHierarchyNotReady indicates the required CA tier does not exist yet.
	ErrHierarchyNotReady = errors.New("CA hierarchy not ready")

	// ErrAlreadyExists indicates the CA tier has already been created.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyRevoked indicates the certificate has already been revoked.
	ErrAlreadyRevoked = errors.New("certificate already revoked")

	// ErrNotFound indicates the requested certificate was not found.
	ErrNotFound = errors.New("certificate not found")

	// ErrSigningFailed indicates the signing service failed.
	ErrSigningFailed = errors.New("signing failed")

	// ErrSigningTimeout indicates the signing service exceeded its deadline.
	ErrSigningTimeout = errors.New("signing timed out")

	// ErrLedgerCorrupt indicates unreadable ledger state. Write operations
	// on the affected scope are refused until the ledger is repaired.
	ErrLedgerCorrupt = errors.New("ledger corrupt")
)

// OpError wraps an error with the operation and serial it occurred in.
// It supports errors.Is() and errors.As() through Unwrap.
type OpError struct {
	Op     string // "createRoot", "createIntermediate", "issue", "revoke", "updateCRL", "list", "get"
	Serial uint64 // certificate serial number, if applicable
	Err    error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Serial != 0 {
		return fmt.Sprintf("ca %s [%d]: %v", e.Op, e.Serial, e.Err)
	}
	return fmt.Sprintf("ca %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	return &OpError{Op: op, Err: err}
}

func opErrSerial(op string, serial uint64, err error) error {
	return &OpError{Op: op, Serial: serial, Err: err}
}
