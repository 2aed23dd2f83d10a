package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat/internal/logging"
	"travelchat/internal/model"
	"travelchat/internal/queue"
)

type fakeObjects struct {
	signErr   error
	deleteErr error
	deleted   []string
}

func (f *fakeObjects) SignedURL(_ context.Context, ref string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example/" + strings.TrimPrefix(ref, "gs://"), nil
}

func (f *fakeObjects) Delete(_ context.Context, ref string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

type fakeAuditReader struct {
	events []model.AuditEvent
	limit  int
}

func (f *fakeAuditReader) Recent(_ context.Context, limit int) ([]model.AuditEvent, error) {
	f.limit = limit
	return f.events, nil
}

type capturePublisher struct {
	events []queue.UploadEvent
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event queue.UploadEvent) (string, error) {
	p.events = append(p.events, event)
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

func adminRequest(method, target, body string) *http.Request {
	return httptest.NewRequest(method, target, strings.NewReader(body))
}

func TestAdminHandler_Sign(t *testing.T) {
	sink := &recordingSink{}
	logger := logging.Discard()
	h := NewAdminHandler(&fakeObjects{}, nil, nil, logging.NewAuditor(logger, sink), logger)
	rec := httptest.NewRecorder()

	h.Sign(rec, adminRequest(http.MethodPost, "/admin/uploads/sign", `{"ref":"gs://bucket/chat-images/1.webp"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ref":"gs://bucket/chat-images/1.webp","url":"https://signed.example/bucket/chat-images/1.webp"}`, rec.Body.String())
	assert.Equal(t, []string{model.AuditActionAdminSign}, sink.actions())
}

func TestAdminHandler_ObjectErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid ref", fmt.Errorf("%w: bad", model.ErrInvalidReference), http.StatusBadRequest},
		{"no remote store", model.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"backend failure", errors.New("503 from bucket"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(&fakeObjects{signErr: tt.err, deleteErr: tt.err}, nil, nil, nil, logging.Discard())

			signRec := httptest.NewRecorder()
			h.Sign(signRec, adminRequest(http.MethodPost, "/admin/uploads/sign", `{"ref":"gs://b/k"}`))
			assert.Equal(t, tt.wantStatus, signRec.Code)

			delRec := httptest.NewRecorder()
			h.Delete(delRec, adminRequest(http.MethodDelete, "/admin/uploads", `{"ref":"gs://b/k"}`))
			assert.Equal(t, tt.wantStatus, delRec.Code)
		})
	}
}

func TestAdminHandler_DeletePublishesEvent(t *testing.T) {
	// ARRANGE
	objects := &fakeObjects{}
	pub := &capturePublisher{}
	h := NewAdminHandler(objects, nil, pub, nil, logging.Discard())
	rec := httptest.NewRecorder()

	// ACT
	h.Delete(rec, adminRequest(http.MethodDelete, "/admin/uploads", `{"ref":"/uploads/upload_1_abc.webp"}`))

	// ASSERT
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"/uploads/upload_1_abc.webp"}, objects.deleted)
	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.EventUploadDeleted, pub.events[0].Type)
	assert.Equal(t, []string{"/uploads/upload_1_abc.webp"}, pub.events[0].Refs())
}

func TestAdminHandler_MissingRef(t *testing.T) {
	h := NewAdminHandler(&fakeObjects{}, nil, nil, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.Sign(rec, adminRequest(http.MethodPost, "/admin/uploads/sign", `{"ref":"  "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_AuditLog(t *testing.T) {
	reader := &fakeAuditReader{events: []model.AuditEvent{{
		ID: "1", Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Level: model.AuditSecurity, Action: model.AuditActionUploadAttempt,
	}}}
	h := NewAdminHandler(&fakeObjects{}, reader, nil, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.AuditLog(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?limit=25", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, reader.limit)
	assert.Contains(t, rec.Body.String(), model.AuditActionUploadAttempt)
}

func TestAdminHandler_AuditLogWithoutDatabase(t *testing.T) {
	h := NewAdminHandler(&fakeObjects{}, nil, nil, nil, logging.Discard())
	rec := httptest.NewRecorder()

	h.AuditLog(rec, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
