// Package handler implements the REST API endpoints.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/srikantkt/certmgr/internal/api/dto"
	apierrors "github.com/srikantkt/certmgr/internal/api/errors"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	respondJSON(w, status, map[string]interface{}{"error": apiErr})
}

// handleServiceError maps an engine error onto the wire.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
