package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"travelchat/internal/httputil"
	"travelchat/internal/logging"
	"travelchat/internal/model"
)

// Asker answers a chat request with the model's text.
type Asker interface {
	Ask(ctx context.Context, req model.ChatRequest) (string, error)
}

type ChatHandler struct {
	chat   Asker
	audit  *logging.Auditor
	logger *log.Logger
}

// NewChatHandler accepts a nil chat when the gateway is not configured; every request
// then fails with the service-unavailable message.
func NewChatHandler(chat Asker, audit *logging.Auditor, logger *log.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, audit: audit, logger: logger.WithPrefix("ChatHandler")}
}

// Ask handles POST /api/sri-chatbot
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		httputil.WriteBadRequest(w, model.MsgQuestionRequired)
		return
	}

	h.audit.API(r, model.AuditInfo, model.AuditActionChatRequest, map[string]any{
		"questionLength": len(req.Question),
		"historyTurns":   len(req.ChatHistory),
		"attachments":    len(req.Attachments),
	})

	if h.chat == nil {
		h.audit.API(r, model.AuditError, model.AuditActionChatFailure, map[string]any{"reason": "not configured"})
		httputil.WriteInternalError(w, model.MsgServiceUnavailable)
		return
	}

	answer, err := h.chat.Ask(r.Context(), req)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	h.audit.API(r, model.AuditInfo, model.AuditActionChatSuccess, map[string]any{
		"responseLength": len(answer),
	})
	httputil.WriteJSON(w, http.StatusOK, model.ChatResponse{
		Success:  true,
		Response: answer,
		Question: req.Question,
	})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrQuestionRequired) {
		httputil.WriteBadRequest(w, model.MsgQuestionRequired)
		return
	}

	var upstream *model.UpstreamError
	if errors.As(err, &upstream) {
		h.logger.Warn("upstream failed", "kind", upstream.Kind, "attempts", upstream.Attempts, "err", upstream.Err)
		h.audit.API(r, model.AuditError, model.AuditActionChatFailure, map[string]any{
			"kind":     upstream.Kind.String(),
			"attempts": upstream.Attempts,
		})
		httputil.WriteRetryableError(w, upstream.Message(), upstream.NeedsRetry())
		return
	}

	h.logger.Error("chat failed", "err", err)
	h.audit.API(r, model.AuditError, model.AuditActionChatFailure, map[string]any{"error": err.Error()})
	httputil.WriteInternalError(w, model.MsgServiceUnavailable)
}
