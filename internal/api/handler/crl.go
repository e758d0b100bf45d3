package handler

import (
	"net/http"

	"github.com/srikantkt/certmgr/internal/api/dto"
	apierrors "github.com/srikantkt/certmgr/internal/api/errors"
	"github.com/srikantkt/certmgr/internal/api/service"
)

// CRLHandler serves CRL operations.
type CRLHandler struct {
	svc *service.CAService
}

// NewCRLHandler creates a CRLHandler.
func NewCRLHandler(svc *service.CAService) *CRLHandler {
	return &CRLHandler{svc: svc}
}

// Update handles POST /api/v1/crl/update.
func (h *CRLHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCRLRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	crl, err := h.svc.UpdateCRL(r.Context(), req.Passphrase)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, crl)
}
