package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse is the JSON body of every failed request. Only Error is
// always present; the remaining fields extend it for specific failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`

	// Valid is set on license validation failures.
	Valid *bool `json:"valid,omitempty"`

	// Plan names the caller's plan when the rejection depends on it.
	Plan string `json:"plan,omitempty"`

	// Reason, BlockingFactors, LimitsStatus, and ResetTimes describe a
	// limit rejection.
	Reason          string `json:"reason,omitempty"`
	BlockingFactors any    `json:"blocking_factors,omitempty"`
	LimitsStatus    any    `json:"limits_status,omitempty"`
	ResetTimes      any    `json:"reset_times,omitempty"`
}

// WriteJSONResponse writes data as a JSON response with the given status.
//
// Example usage:
//
//	if err := WriteJSONResponse(w, http.StatusOK, body); err != nil {
//	    slog.Error("failed to write response", "error", err)
//	}
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes a {"error": message} body with the given status.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSONResponse(w, statusCode, &ErrorResponse{Error: message})
}

// WriteValidationFailure writes a license validation failure, which always
// carries "valid": false.
func WriteValidationFailure(w http.ResponseWriter, statusCode int, message string) error {
	valid := false
	return WriteJSONResponse(w, statusCode, &ErrorResponse{Error: message, Valid: &valid})
}
