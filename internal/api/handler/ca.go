package handler

import (
	"net/http"

	"github.com/srikantkt/certmgr/internal/api/dto"
	apierrors "github.com/srikantkt/certmgr/internal/api/errors"
	"github.com/srikantkt/certmgr/internal/api/service"
)

// CAHandler serves workspace and CA hierarchy operations.
type CAHandler struct {
	svc *service.CAService
}

// NewCAHandler creates a CAHandler.
func NewCAHandler(svc *service.CAService) *CAHandler {
	return &CAHandler{svc: svc}
}

// Init handles POST /api/v1/init.
func (h *CAHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req dto.InitRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
			return
		}
	}

	if err := h.svc.Init(req); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{
		Success: true,
		Message: "workspace initialized",
	})
}

// CreateRoot handles POST /api/v1/ca/root.
func (h *CAHandler) CreateRoot(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRootRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	resp, err := h.svc.CreateRoot(r.Context(), req.Passphrase)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// CreateIntermediate handles POST /api/v1/ca/intermediate.
func (h *CAHandler) CreateIntermediate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateIntermediateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	resp, err := h.svc.CreateIntermediate(r.Context(), req.RootPassphrase, req.Passphrase)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Config handles GET /api/v1/config.
func (h *CAHandler) Config(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Config())
}
