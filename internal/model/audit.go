package model

import (
	"encoding/json"
	"time"
)

// AuditLevel is the severity of an audit event.
type AuditLevel string

const (
	AuditDebug    AuditLevel = "DEBUG"
	AuditInfo     AuditLevel = "INFO"
	AuditWarn     AuditLevel = "WARN"
	AuditError    AuditLevel = "ERROR"
	AuditSecurity AuditLevel = "SECURITY"
)

// Common audit actions
const (
	AuditActionUploadAttempt = "SECURITY_FILE_UPLOAD_ATTEMPT"
	AuditActionUploadSuccess = "SUCCESS_FILE_UPLOAD"
	AuditActionUploadFailure = "ERROR_FILE_UPLOAD"
	AuditActionSuspicious    = "SECURITY_SUSPICIOUS_ACTIVITY"
	AuditActionChatRequest   = "REQUEST_API_CHAT"
	AuditActionChatSuccess   = "SUCCESS_API_CHAT"
	AuditActionChatFailure   = "ERROR_API_CHAT"
	AuditActionAdminDelete   = "SECURITY_ADMIN_DELETE"
	AuditActionAdminSign     = "SECURITY_ADMIN_SIGN"
)

// AuditEvent is a structured security/audit record. Details are redacted before persisting.
type AuditEvent struct {
	ID        string          `db:"id" json:"id"`
	Timestamp time.Time       `db:"created_at" json:"timestamp"`
	Level     AuditLevel      `db:"level" json:"level"`
	Action    string          `db:"action" json:"action"`
	IP        string          `db:"ip_address" json:"ip"`
	UserAgent string          `db:"user_agent" json:"userAgent,omitempty"`
	Referer   string          `db:"referer" json:"referer,omitempty"`
	Method    string          `db:"method" json:"method,omitempty"`
	URL       string          `db:"url" json:"url,omitempty"`
	RequestID string          `db:"request_id" json:"requestId,omitempty"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
}
