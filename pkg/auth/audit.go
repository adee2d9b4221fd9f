package auth

import (
	"net/http"

	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/observability"
)

// Audit action constants
const (
	ActionAuthSuccess      = "auth.success"
	ActionAuthFailure      = "auth.failure"
	ActionPermissionUpdate = "permission.update"
	ActionOwnerChange      = "owner.change"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditLogger records security-relevant events as structured log lines.
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates an audit logger over the service logger.
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.WithField("audit", true)}
}

// LogAuth records an authentication attempt.
func (al *AuditLogger) LogAuth(r *http.Request, userID model.UserID, err error) {
	entry := al.logger.WithFields(map[string]interface{}{
		"ip":         clientIP(r),
		"user_agent": r.UserAgent(),
		"path":       r.URL.Path,
	})

	if err != nil {
		entry.WithError(err).WithField("action", ActionAuthFailure).Warn("authentication failed")
		return
	}
	entry.WithFields(map[string]interface{}{
		"action":  ActionAuthSuccess,
		"user_id": string(userID),
	}).Info("authentication succeeded")
}

// LogPermissionChange records a permission mutation attempt against a
// node, including denied and failed attempts.
func (al *AuditLogger) LogPermissionChange(r *http.Request, userID model.UserID, nodeID model.NodeID, ownerChanged bool, status string) {
	action := ActionPermissionUpdate
	if ownerChanged {
		action = ActionOwnerChange
	}

	al.logger.WithFields(map[string]interface{}{
		"action":  action,
		"user_id": string(userID),
		"node_id": string(nodeID),
		"status":  status,
		"ip":      clientIP(r),
	}).Info("permission change")
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
