package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
)

// JSONResponse sends a JSON response with the given status code
func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse sends a JSON error response
func ErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":   message,
		"success": false,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	JSONResponse(w, statusCode, response)
}

// DomainError maps an error from the usecase layer to the right status code:
// validation failures are 400, missing entities and impossible lifecycle
// transitions are 404, everything else is 500.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case entity.IsValidation(err):
		ErrorResponse(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, entity.ErrNotFound):
		ErrorResponse(w, http.StatusNotFound, "not found", nil)
	default:
		ErrorResponse(w, http.StatusInternalServerError, "internal error", err)
	}
}

// SuccessResponse sends a JSON success response
func SuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	response := map[string]interface{}{
		"message": message,
		"success": true,
	}
	if data != nil {
		response["data"] = data
	}
	JSONResponse(w, http.StatusOK, response)
}

// DecodeJSON decodes JSON from request body
func DecodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// ListResponse wraps list payloads with their total match count.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
}

// NewListResponse creates a list response.
func NewListResponse(data interface{}, total int64) *ListResponse {
	return &ListResponse{Data: data, Total: total}
}
