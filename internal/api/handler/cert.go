package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/srikantkt/certmgr/internal/api/dto"
	apierrors "github.com/srikantkt/certmgr/internal/api/errors"
	"github.com/srikantkt/certmgr/internal/api/service"
)

// CertHandler serves CSR, issuance, revocation and listing endpoints.
type CertHandler struct {
	svc *service.CAService
}

// NewCertHandler creates a CertHandler.
func NewCertHandler(svc *service.CAService) *CertHandler {
	return &CertHandler{svc: svc}
}

// CreateCSR handles POST /api/v1/csr.
func (h *CertHandler) CreateCSR(w http.ResponseWriter, r *http.Request) {
	var req dto.CSRRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	resp, err := h.svc.CreateCSR(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Sign handles POST /api/v1/certificates/sign.
func (h *CertHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req dto.SignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	cert, err := h.svc.Sign(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cert)
}

// Revoke handles POST /api/v1/certificates/revoke.
func (h *CertHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req dto.RevokeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	resp, err := h.svc.Revoke(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// List handles GET /api/v1/certificates/list.
func (h *CertHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Download handles GET /api/v1/certificates/download/{filename}.
func (h *CertHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.svc.ResolveDownload(filename)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(path))
	http.ServeFile(w, r, path)
}
