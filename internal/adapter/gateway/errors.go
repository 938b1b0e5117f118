package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"agentverse/internal/domain"
)

type errorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code"`
}

// statusFor maps a domain error to an HTTP status. Generation failures are
// checked first so a provider 429 inside a flow answers 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGenerationFailed), errors.Is(err, domain.ErrOutputShape):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrRPCInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrContainerExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: domain.ErrorCodeOf(err)})
}

// rateLimited answers the gateway limiter's rejections in the API error shape.
func rateLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error: domain.ErrRateLimit.Error(),
		Code:  domain.CodeRateLimit,
	})
}
