// Package errors maps engine errors to HTTP status codes.
package errors

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/srikantkt/certmgr/internal/api/dto"
	"github.com/srikantkt/certmgr/internal/ca"
)

// Error codes for API responses.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeHierarchyNotReady = "HIERARCHY_NOT_READY"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeAlreadyRevoked    = "ALREADY_REVOKED"
	CodeNotFound          = "NOT_FOUND"
	CodeSigningFailed     = "SIGNING_FAILED"
	CodeSigningTimeout    = "SIGNING_TIMEOUT"
	CodeLedgerCorrupt     = "LEDGER_CORRUPT"
	CodeInternal          = "INTERNAL_ERROR"
)

// MapError maps an engine error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	status := http.StatusInternalServerError
	code := CodeInternal

	switch {
	case errors.Is(err, ca.ErrInvalidRequest):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, ca.ErrHierarchyNotReady):
		status, code = http.StatusPreconditionFailed, CodeHierarchyNotReady
	case errors.Is(err, ca.ErrAlreadyExists):
		status, code = http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, ca.ErrAlreadyRevoked):
		status, code = http.StatusConflict, CodeAlreadyRevoked
	case errors.Is(err, ca.ErrNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, ca.ErrSigningFailed):
		status, code = http.StatusBadGateway, CodeSigningFailed
	case errors.Is(err, ca.ErrSigningTimeout):
		status, code = http.StatusGatewayTimeout, CodeSigningTimeout
	case errors.Is(err, ca.ErrLedgerCorrupt):
		status, code = http.StatusInternalServerError, CodeLedgerCorrupt
	}

	apiErr := &dto.APIError{Code: code, Message: err.Error()}
	if code == CodeInternal {
		// Do not leak internals for unclassified errors.
		apiErr.Message = "An internal error occurred"
	}

	var opErr *ca.OpError
	if errors.As(err, &opErr) {
		apiErr.Details = map[string]string{"operation": opErr.Op}
		if opErr.Serial != 0 {
			apiErr.Details["serial"] = strconv.FormatUint(opErr.Serial, 10)
		}
	}
	return status, apiErr
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{Code: CodeInvalidRequest, Message: message}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}
