package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"travelchat/internal/model"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

// auditRow mirrors the table; details is TEXT so drivers that return strings scan cleanly.
type auditRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	Level     string    `db:"level"`
	Action    string    `db:"action"`
	IP        string    `db:"ip_address"`
	UserAgent string    `db:"user_agent"`
	Referer   string    `db:"referer"`
	Method    string    `db:"method"`
	URL       string    `db:"url"`
	RequestID string    `db:"request_id"`
	Details   string    `db:"details"`
}

func (r auditRow) toModel() model.AuditEvent {
	return model.AuditEvent{
		ID:        r.ID,
		Timestamp: r.CreatedAt,
		Level:     model.AuditLevel(r.Level),
		Action:    r.Action,
		IP:        r.IP,
		UserAgent: r.UserAgent,
		Referer:   r.Referer,
		Method:    r.Method,
		URL:       r.URL,
		RequestID: r.RequestID,
		Details:   json.RawMessage(r.Details),
	}
}

// Record inserts an audit event.
func (r *auditRepository) Record(ctx context.Context, event model.AuditEvent) error {
	details := string(event.Details)
	if details == "" {
		details = "{}"
	}

	query := r.db.Rebind(`
		INSERT INTO upload_audit_log
			(id, created_at, level, action, ip_address, user_agent, referer, method, url, request_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp.UTC(), string(event.Level), event.Action, event.IP,
		event.UserAgent, event.Referer, event.Method, event.URL, event.RequestID, details,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events first.
func (r *auditRepository) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.Rebind(`
		SELECT id, created_at, level, action, ip_address, user_agent, referer, method, url, request_id, details
		FROM upload_audit_log
		ORDER BY created_at DESC
		LIMIT ?
	`)
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}

	events := make([]model.AuditEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toModel())
	}
	return events, nil
}

// DeleteOlderThan prunes events created before cutoff.
func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM upload_audit_log WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
