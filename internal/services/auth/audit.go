package auth

import (
	"context"
	"time"
)

const (
	AuditLogin         = "auth.login"
	AuditRegister      = "auth.register"
	AuditLogout        = "auth.logout"
	AuditLogoutAll     = "auth.logout_all"
	AuditSessionRevoke = "auth.session_revoke"
	AuditPasswordReset = "auth.password_reset"
)

type AuditEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	At        time.Time `json:"at"`
}

// Auditor records security-relevant auth events. Implementations must not
// block the calling request on delivery.
type Auditor interface {
	Publish(ctx context.Context, ev AuditEvent)
}

type NopAuditor struct{}

func (NopAuditor) Publish(context.Context, AuditEvent) {}
