package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/codepass"
)

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidCode         = "INVALID_CODE"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus maps engine errors onto HTTP. Denials never carry their
// internal reason.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, codepass.ErrInvalidPayload):
		return http.StatusBadRequest, "Invalid payload", CodeInvalidInput
	case errors.Is(err, codepass.ErrVerificationFailed):
		return http.StatusUnauthorized, "Invalid verification code", CodeInvalidCode
	case errors.Is(err, codepass.ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid or expired token", CodeInvalidToken
	case errors.Is(err, codepass.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "Invalid refresh token", CodeInvalidRefreshToken
	case errors.Is(err, codepass.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials", CodeInvalidCredentials
	case errors.Is(err, codepass.ErrCodeRateLimited),
		errors.Is(err, codepass.ErrVerifyRateLimited),
		errors.Is(err, codepass.ErrRefreshRateLimited),
		errors.Is(err, codepass.ErrLoginRateLimited):
		return http.StatusTooManyRequests, "Too many requests", CodeRateLimit
	case errors.Is(err, codepass.ErrStoreUnavailable),
		errors.Is(err, codepass.ErrDirectoryUnavailable),
		errors.Is(err, codepass.ErrExhaustedKeyspace),
		errors.Is(err, codepass.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "Service unavailable", CodeUnavailable
	default:
		return http.StatusInternalServerError, "Internal server error", CodeInternalError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message, code := errorStatus(err)
	if after, ok := codepass.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(after.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, message, code)
}

// decode reads a JSON body of at most h.maxBody bytes into dst.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", CodeInvalidInput)
		return false
	}
	return true
}
