package model

import "time"

// Audit actions recorded by the credential service.
const (
	AuditUserRegistered   = "auth.user.registered"
	AuditLoginSucceeded   = "auth.login.succeeded"
	AuditLoginFailed      = "auth.login.failed"
	AuditTokenRotated     = "auth.token.rotated"
	AuditReuseDetected    = "auth.token.reuse_detected"
	AuditLogout           = "auth.logout"
	AuditLogoutEverywhere = "auth.logout.everywhere"
)

type AuditEvent struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	UserID     string    `json:"user_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
