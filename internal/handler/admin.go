package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"travelchat/internal/httputil"
	"travelchat/internal/logging"
	"travelchat/internal/model"
	"travelchat/internal/queue"
)

// ObjectAdmin signs and deletes stored uploads by ref.
type ObjectAdmin interface {
	SignedURL(ctx context.Context, ref string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// AuditReader lists persisted audit events.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

type AdminHandler struct {
	objects   ObjectAdmin
	events    AuditReader
	publisher queue.Publisher
	audit     *logging.Auditor
	logger    *log.Logger
}

// NewAdminHandler wires the admin API. events and publisher may be nil.
func NewAdminHandler(objects ObjectAdmin, events AuditReader, publisher queue.Publisher, audit *logging.Auditor, logger *log.Logger) *AdminHandler {
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	return &AdminHandler{
		objects:   objects,
		events:    events,
		publisher: publisher,
		audit:     audit,
		logger:    logger.WithPrefix("Admin"),
	}
}

type refRequest struct {
	Ref string `json:"ref"`
}

type signResponse struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

func decodeRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req refRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return "", false
	}
	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		httputil.WriteBadRequest(w, "ref is required")
		return "", false
	}
	return ref, true
}

// Sign handles POST /admin/uploads/sign
func (h *AdminHandler) Sign(w http.ResponseWriter, r *http.Request) {
	ref, ok := decodeRef(w, r)
	if !ok {
		return
	}

	url, err := h.objects.SignedURL(r.Context(), ref)
	if err != nil {
		h.writeObjectError(w, ref, err)
		return
	}

	h.audit.API(r, model.AuditSecurity, model.AuditActionAdminSign, map[string]any{"ref": ref})
	httputil.WriteJSON(w, http.StatusOK, signResponse{Ref: ref, URL: url})
}

// Delete handles DELETE /admin/uploads
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, ok := decodeRef(w, r)
	if !ok {
		return
	}

	if err := h.objects.Delete(r.Context(), ref); err != nil {
		h.writeObjectError(w, ref, err)
		return
	}

	if _, err := h.publisher.Publish(r.Context(), queue.StreamUploads, queue.NewUploadDeletedEvent(ref)); err != nil {
		h.logger.Warn("publish delete failed", "ref", ref, "err", err)
	}

	h.audit.API(r, model.AuditSecurity, model.AuditActionAdminDelete, map[string]any{"ref": ref})
	w.WriteHeader(http.StatusNoContent)
}

// AuditLog handles GET /admin/audit?limit=N
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "", "Audit log storage is not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit events failed", "err", err)
		httputil.WriteInternalError(w, "Failed to load audit events")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) writeObjectError(w http.ResponseWriter, ref string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidReference):
		httputil.WriteBadRequest(w, "Invalid storage reference")
	case errors.Is(err, model.ErrStoreUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, "", "Object storage is not configured")
	default:
		h.logger.Error("object operation failed", "ref", ref, "err", err)
		httputil.WriteInternalError(w, "Storage operation failed")
	}
}
