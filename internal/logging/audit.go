package logging

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"travelchat/internal/model"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "token", "secret", "key", "auth", "authorization",
	"cookie", "session", "private", "credential",
}

// AuditSink persists audit events.
type AuditSink interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

// Auditor turns request-scoped security events into AuditEvents and fans them out to sinks.
// Sink failures are logged and never surface to the caller.
type Auditor struct {
	logger *log.Logger
	sinks  []AuditSink
}

// NewAuditor creates an auditor writing to the given logger and any extra sinks.
func NewAuditor(logger *log.Logger, sinks ...AuditSink) *Auditor {
	return &Auditor{logger: logger.WithPrefix("Audit"), sinks: sinks}
}

// UploadAttempt records an incoming upload before validation.
func (a *Auditor) UploadAttempt(r *http.Request, filename string, size int64) {
	a.write(r, model.AuditSecurity, model.AuditActionUploadAttempt, map[string]any{
		"filename": filename,
		"size":     size,
	})
}

// UploadSuccess records a stored upload.
func (a *Auditor) UploadSuccess(r *http.Request, filename string, size int64, details map[string]any) {
	a.write(r, model.AuditInfo, model.AuditActionUploadSuccess, merge(map[string]any{
		"filename": filename,
		"size":     size,
	}, details))
}

// UploadFailure records a rejected or failed upload.
func (a *Auditor) UploadFailure(r *http.Request, filename, reason string, details map[string]any) {
	a.write(r, model.AuditError, model.AuditActionUploadFailure, merge(map[string]any{
		"filename":     filename,
		"errorMessage": reason,
	}, details))
}

// Suspicious records content or behaviour that looks like an attack.
func (a *Auditor) Suspicious(r *http.Request, activity string, details map[string]any) {
	a.write(r, model.AuditSecurity, model.AuditActionSuspicious, merge(map[string]any{
		"activity": activity,
	}, details))
}

// API records a generic request/success/error event for a named endpoint.
func (a *Auditor) API(r *http.Request, level model.AuditLevel, action string, details map[string]any) {
	a.write(r, level, action, details)
}

func (a *Auditor) write(r *http.Request, level model.AuditLevel, action string, details map[string]any) {
	if a == nil {
		return
	}

	event := model.AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Action:    action,
		IP:        "unknown",
	}
	if r != nil {
		event.IP = ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Referer = r.Referer()
		event.Method = r.Method
		event.URL = r.URL.String()
		event.RequestID = middleware.GetReqID(r.Context())
	}
	if details != nil {
		data, err := json.Marshal(Sanitize(details))
		if err == nil {
			event.Details = data
		}
	}

	a.logger.Info(action,
		"level", string(level),
		"ip", event.IP,
		"request_id", event.RequestID,
		"details", string(event.Details),
	)

	ctx := context.Background()
	if r != nil {
		ctx = context.WithoutCancel(r.Context())
	}
	for _, sink := range a.sinks {
		if err := sink.Record(ctx, event); err != nil {
			a.logger.Warn("audit sink failed", "action", action, "err", err)
		}
	}
}

// Sanitize returns a copy of details with values under sensitive-looking keys replaced.
// Nested maps are sanitized recursively.
func Sanitize(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSensitive(k) {
			out[k] = redacted
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = Sanitize(nested)
		case map[string]string:
			converted := make(map[string]any, len(nested))
			for nk, nv := range nested {
				converted[nk] = nv
			}
			out[k] = Sanitize(converted)
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ClientIP extracts the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP", "X-Client-IP"} {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return strings.Trim(r.RemoteAddr, "[]")
}

func merge(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
