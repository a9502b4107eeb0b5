package audit

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/sirupsen/logrus"

	"civreg.org/internal/auth"
	"civreg.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Event names.
const (
	EventLogin            = "auth.login"
	EventLoginFailed      = "auth.login_failed"
	EventRegister         = "auth.register"
	EventRefresh          = "auth.refresh"
	EventLogout           = "auth.logout"
	EventUserCreate       = "users.create"
	EventUserUpdate       = "users.update"
	EventUserDelete       = "users.delete"
	EventPasswordReset    = "users.password_reset"
	EventHouseholdCreate  = "households.create"
	EventHouseholdUpdate  = "households.update"
	EventRequestSubmit    = "requests.submit"
	EventRequestApprove   = "requests.approve"
	EventRequestReject    = "requests.reject"
	EventPermissionDenied = "authz.denied"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		entry["actor_id"] = id.ID
		entry["actor_role"] = id.Role.String()
	}
	copyFields := make(map[string]any, len(fields))
	maps.Copy(copyFields, fields)
	entry["fields"] = copyFields

	obs.Logger().WithFields(entry).Info(event)
	return nil
}
