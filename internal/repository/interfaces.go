package repository

import (
	"context"
	"time"

	"travelchat/internal/model"
)

type AuditRepository interface {
	// Record persists one event; it satisfies logging.AuditSink.
	Record(ctx context.Context, event model.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]model.AuditEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
