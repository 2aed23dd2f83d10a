package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat/internal/logging"
	"travelchat/internal/model"
)

type stubAsker struct {
	answer string
	err    error
	got    model.ChatRequest
}

func (s *stubAsker) Ask(_ context.Context, req model.ChatRequest) (string, error) {
	s.got = req
	return s.answer, s.err
}

func chatRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/sri-chatbot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestChatHandler_Success(t *testing.T) {
	// ARRANGE
	asker := &stubAsker{answer: "Try Sigiriya at sunrise."}
	h := NewChatHandler(asker, nil, logging.Discard())
	rec := httptest.NewRecorder()

	// ACT
	h.Ask(rec, chatRequest(`{"question":"Where to go?","chatHistory":[{"question":"hi","response":"hello"}],"attachments":[{"gcsUrl":"gs://b/chat-images/1.webp","type":"image/webp"}]}`))

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Try Sigiriya at sunrise.", body["response"])
	assert.Equal(t, "Where to go?", body["question"])
	assert.Len(t, asker.got.ChatHistory, 1)
	assert.Equal(t, "gs://b/chat-images/1.webp", asker.got.Attachments[0].GCSURL)
}

func TestChatHandler_QuestionRequired(t *testing.T) {
	asker := &stubAsker{}
	h := NewChatHandler(asker, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.Ask(rec, chatRequest(`{"question":"   "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.MsgQuestionRequired, decodeBody(t, rec)["error"])
}

func TestChatHandler_InvalidJSON(t *testing.T) {
	h := NewChatHandler(&stubAsker{}, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.Ask(rec, chatRequest(`{"question":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_NotConfigured(t *testing.T) {
	h := NewChatHandler(nil, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.Ask(rec, chatRequest(`{"question":"hello"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, model.MsgServiceUnavailable, decodeBody(t, rec)["error"])
}

func TestChatHandler_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantMsg   string
		wantRetry any
	}{
		{
			name:      "provisioning asks client to retry",
			err:       &model.UpstreamError{Kind: model.UpstreamProvisioning, Attempts: 3, Err: errors.New("agents")},
			wantMsg:   model.MsgUpstreamWarmingUp,
			wantRetry: true,
		},
		{
			name:      "timeout",
			err:       &model.UpstreamError{Kind: model.UpstreamTimeout, Attempts: 1, Err: context.DeadlineExceeded},
			wantMsg:   model.MsgUpstreamTimeout,
			wantRetry: false,
		},
		{
			name:      "unavailable",
			err:       &model.UpstreamError{Kind: model.UpstreamUnavailable, Attempts: 1, Err: errors.New("500")},
			wantMsg:   model.MsgServiceUnavailable,
			wantRetry: false,
		},
		{
			name:      "unexpected error has no retry hint",
			err:       errors.New("marshal failed"),
			wantMsg:   model.MsgServiceUnavailable,
			wantRetry: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			logger := logging.Discard()
			h := NewChatHandler(&stubAsker{err: tt.err}, logging.NewAuditor(logger, sink), logger)
			rec := httptest.NewRecorder()

			h.Ask(rec, chatRequest(`{"question":"hello"}`))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.Equal(t, tt.wantRetry, body["needsRetry"])
			assert.Equal(t, []string{model.AuditActionChatRequest, model.AuditActionChatFailure}, sink.actions())
		})
	}
}
