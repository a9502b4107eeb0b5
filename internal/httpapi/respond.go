package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/obs"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ReturnCode int    `json:"returnCode"`
	Result     any    `json:"result,omitempty"`
}

type errorEnvelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Detail     string `json:"detail"`
	ReturnCode int    `json:"returnCode"`
	RequestID  string `json:"requestId,omitempty"`
}

func respondOK(w http.ResponseWriter, code int, message string, result any) {
	writeJSON(w, code, envelope{
		Success:    true,
		Message:    message,
		ReturnCode: code,
		Result:     result,
	})
}

func respondError(w http.ResponseWriter, r *http.Request, code int, message, detail string) {
	writeJSON(w, code, errorEnvelope{
		Success:    false,
		Message:    message,
		Detail:     detail,
		ReturnCode: code,
		RequestID:  RequestIDFromContext(r.Context()),
	})
}

// statusFor maps service errors onto HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid username or password"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrIdentityNotFound):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrScopeMisconfigured):
		return http.StatusForbidden, "account scope is misconfigured"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "permission denied"
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "already exists"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// handleError writes the failure envelope for err. Internal errors are logged
// and never echoed to the client.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := statusFor(err)
	detail := err.Error()
	switch code {
	case http.StatusInternalServerError:
		obs.Logger().WithError(err).
			WithField("request_id", RequestIDFromContext(r.Context())).
			WithField("path", r.URL.Path).
			Error("request_failed")
		detail = ""
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="civreg"`)
	case http.StatusForbidden:
		_ = audit.LogEvent(r.Context(), audit.EventPermissionDenied, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"reason": detail,
		})
	}
	respondError(w, r, code, message, detail)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
