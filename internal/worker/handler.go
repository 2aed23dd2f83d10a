package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"travelchat/internal/cache"
	"travelchat/internal/queue"
)

// Handler applies upload events to the upload index.
type Handler struct {
	index  cache.UploadIndex
	logger *log.Logger
}

// NewHandler creates a new event handler.
func NewHandler(index cache.UploadIndex, logger *log.Logger) *Handler {
	return &Handler{index: index, logger: logger.WithPrefix("Worker")}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.UploadEvent) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventUploadStored:
		err = h.handleStored(ctx, event)
	case queue.EventUploadDeleted:
		err = h.index.Remove(ctx, event.Refs()...)
	default:
		h.logger.Warn("unknown event type", "type", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		h.logger.Error("handle event failed", "type", event.Type, "duration", time.Since(startTime), "err", err)
		return err
	}

	h.logger.Debug("handled event", "type", event.Type, "duration", time.Since(startTime))
	return nil
}

// handleStored indexes every ref of a stored upload at the event's timestamp.
func (h *Handler) handleStored(ctx context.Context, event queue.UploadEvent) error {
	storedAt := time.UnixMilli(event.Timestamp)
	for _, ref := range event.Refs() {
		if err := h.index.Add(ctx, ref, storedAt); err != nil {
			return err
		}
	}
	return nil
}
