package proxy

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/telemetry/logging"
)

// MessageInternal is the body of every unclassified failure.
const MessageInternal = "Internal server error"

// HandleError writes the response for err. Gate errors keep their status
// and client message, request and domain errors map to 4xx, and anything
// else is logged and answered with a generic 500.
//
// Example usage:
//
//	if err != nil {
//	    proxy.HandleError(w, r, err, logger)
//	    return
//	}
func HandleError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	logger = logging.OrDefault(logger)

	if gerr, ok := gate.AsError(err); ok {
		writeGateError(w, gerr)
		return
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		_ = WriteErrorResponse(w, http.StatusBadRequest, reqErr.Message)
		return
	}

	if status, message, ok := domainError(err); ok {
		_ = WriteErrorResponse(w, status, message)
		return
	}

	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	_ = WriteErrorResponse(w, http.StatusInternalServerError, MessageInternal)
}

// writeGateError renders a gate rejection. Limit rejections carry every
// blocking dimension and the status of all limits; a blocked window adds a
// Retry-After header.
func writeGateError(w http.ResponseWriter, gerr *gate.Error) {
	body := &ErrorResponse{Error: gerr.Message, Message: gerr.Detail}

	switch gerr.Kind {
	case gate.KindFeatureNotIncluded:
		body.Plan = gerr.Plan
	case gate.KindLimitExceeded:
		body.Plan = gerr.Plan
		body.Reason = string(gerr.Reason)
		body.BlockingFactors = gerr.Blocking
		if gerr.Evaluation != nil {
			body.LimitsStatus = gerr.Evaluation.Statuses
			body.ResetTimes = gerr.Evaluation.Resets
		}
		if gerr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(gerr.RetryAfter.Seconds())))
		}
	}

	_ = WriteJSONResponse(w, gerr.Status, body)
}

// domainError maps licensing errors raised outside the gate, such as by
// the admin endpoints.
func domainError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, licensing.ErrCustomerNotFound):
		return http.StatusNotFound, "Customer not found", true
	case errors.Is(err, licensing.ErrPlanNotFound):
		return http.StatusNotFound, "Plan not found", true
	case errors.Is(err, licensing.ErrInvalidLicense):
		return http.StatusNotFound, "License not found", true
	case errors.Is(err, licensing.ErrCustomerExists):
		return http.StatusConflict, "Customer already exists", true
	case errors.Is(err, licensing.ErrUsageNotFound):
		return http.StatusNotFound, "Usage record not found", true
	case errors.Is(err, licensing.ErrStatusConflict):
		return http.StatusConflict, "License status changed, retry the request", true
	case errors.Is(err, licensing.ErrSeatsExhausted):
		return http.StatusConflict, "No licenses remaining for this plan", true
	default:
		return 0, "", false
	}
}
