package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"finny/internal/billing"
	"finny/internal/limits"
	"finny/internal/log"
	"finny/internal/middleware/trace"
	"finny/internal/services"
	"finny/internal/session"
)

type errorResponse struct {
	Error     string      `json:"error"`
	Kind      limits.Kind `json:"kind,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// codeLimitReached is the error of a 402 answer; Kind names the resource.
const codeLimitReached = "LIMIT_REACHED"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// statusFor maps service errors onto HTTP status codes and log error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, log.ErrorTypeValidation
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, services.ErrNoProfile):
		return http.StatusConflict, log.ErrorTypeNotFound
	case errors.Is(err, services.ErrLimitReached):
		return http.StatusPaymentRequired, log.ErrorTypeLimit
	case errors.Is(err, services.ErrExportNotAllowed), errors.Is(err, services.ErrHistoryLimited):
		return http.StatusForbidden, log.ErrorTypeForbidden
	case errors.Is(err, billing.ErrUnknownEvent):
		return http.StatusBadRequest, log.ErrorTypeValidation
	}
	return http.StatusInternalServerError, log.ErrorTypeInternal
}

var errBadRequest = errors.New("bad request")

// badRequest marks a request parsing error.
func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// writeServiceError logs err and answers with its mapped status. Internal
// errors are not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := statusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithErrorType(kind).WithError(err)
	resp := errorResponse{Error: err.Error(), RequestID: trace.GetRequestID(r.Context())}
	var limitErr *services.LimitError
	switch {
	case status == http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		resp.Error = "internal error"
	case errors.As(err, &limitErr):
		logger.InfoContext(r.Context(), "Request rejected", fields.WithLimitKind(string(limitErr.Kind)).ToSlice()...)
		resp.Error = codeLimitReached
		resp.Kind = limitErr.Kind
	default:
		logger.InfoContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	writeJSON(w, status, resp)
}
