package rest

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body for all non-2xx responses.
type ErrorResponse struct {
	Error       string              `json:"error"`
	Detail      string              `json:"detail,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	respondJSON(w, status, ErrorResponse{Error: errMsg, Detail: detail})
}

func respondValidation(w http.ResponseWriter, fieldErrors map[string][]string) {
	respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:       "Validation failed",
		FieldErrors: fieldErrors,
	})
}
