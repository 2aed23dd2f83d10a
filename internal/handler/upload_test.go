package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat/internal/logging"
	"travelchat/internal/model"
	"travelchat/internal/service"
	"travelchat/internal/storage"
)

// =============================================================================
// Helpers
// =============================================================================

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 30, G: 120, B: 200, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type part struct {
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, file *part, options string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if file != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+file.filename+`"`)
		if file.contentType != "" {
			hdr.Set("Content-Type", file.contentType)
		}
		pw, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = pw.Write(file.data)
		require.NoError(t, err)
	}
	if options != "" {
		require.NoError(t, mw.WriteField("options", options))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newLocalUploadHandler(t *testing.T) (*UploadHandler, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	logger := logging.Discard()
	store := service.NewStorageService(storage.NewLocalStore(dir), nil, logger)
	uploads := service.NewUploadService(service.NewValidator(), service.NewTranscoder(), store, nil, nil, logger, dir)
	return NewUploadHandler(uploads, logging.NewAuditor(logger), logger), dir
}

type stubUploader struct {
	err error
}

func (s *stubUploader) DefaultOptions() model.UploadOptions {
	return model.DefaultUploadOptions("")
}

func (s *stubUploader) Upload(context.Context, model.UploadInput, model.UploadOptions) (*model.UploadResult, error) {
	return nil, s.err
}

type recordingSink struct {
	events []model.AuditEvent
}

func (s *recordingSink) Record(_ context.Context, event model.AuditEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) actions() []string {
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

// =============================================================================
// Upload
// =============================================================================

func TestUploadHandler_StoresLocallyWithoutRemote(t *testing.T) {
	// ARRANGE
	h, dir := newLocalUploadHandler(t)
	req := multipartRequest(t, &part{filename: "beach.png", contentType: "image/png", data: pngFixture(t, 800, 600)}, "")
	rec := httptest.NewRecorder()

	// ACT
	h.Upload(rec, req)

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res model.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	assert.True(t, res.Success)
	assert.Equal(t, "webp", res.Format)
	assert.Equal(t, "image/webp", res.Type)
	assert.Equal(t, &model.Dimensions{Width: 500, Height: 375}, res.Dimensions)
	assert.True(t, strings.HasPrefix(res.Path, "/uploads/upload_"))
	assert.Empty(t, res.GCSURL)
	assert.False(t, res.UseGCSPreview)

	_, err := os.Stat(filepath.Join(dir, res.Filename))
	assert.NoError(t, err)
}

func TestUploadHandler_OptionsOverrideDefaults(t *testing.T) {
	h, _ := newLocalUploadHandler(t)
	req := multipartRequest(t,
		&part{filename: "beach.png", contentType: "image/png", data: pngFixture(t, 800, 600)},
		`{"cropSquare":true,"outputSize":200,"outputFormat":"png","uploadPath":"/etc"}`,
	)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res model.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, &model.Dimensions{Width: 200, Height: 200}, res.Dimensions)
}

func TestUploadHandler_CannotSkipReencode(t *testing.T) {
	// ARRANGE
	h, dir := newLocalUploadHandler(t)
	payload := []byte("<?php system($_GET['c']); ?>")
	data := append(pngFixture(t, 800, 600), bytes.Repeat([]byte{0}, 9000)...)
	data = append(data, payload...)
	req := multipartRequest(t,
		&part{filename: "beach.png", contentType: "image/png", data: data},
		`{"forceReprocess":false,"outputFormat":"webp","outputSize":100,"cropSquare":true}`,
	)
	rec := httptest.NewRecorder()

	// ACT
	h.Upload(rec, req)

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res model.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Reprocessed)
	assert.Equal(t, "webp", res.Format)
	assert.Equal(t, &model.Dimensions{Width: 100, Height: 100}, res.Dimensions)

	stored, err := os.ReadFile(filepath.Join(dir, res.Filename))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(stored, payload))
}

func TestUploadHandler_SniffsMissingContentType(t *testing.T) {
	h, _ := newLocalUploadHandler(t)
	req := multipartRequest(t, &part{filename: "beach.png", data: pngFixture(t, 300, 300)}, "")
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadHandler_BadRequests(t *testing.T) {
	valid := pngFixture(t, 200, 150)
	tests := []struct {
		name    string
		file    *part
		options string
		wantMsg string
	}{
		{
			name:    "missing file",
			wantMsg: model.MsgNoFile,
		},
		{
			name:    "unparseable options",
			file:    &part{filename: "a.png", contentType: "image/png", data: []byte{0x89}},
			options: `{not json`,
			wantMsg: model.MsgInvalidOptions,
		},
		{
			name:    "options violate invariants",
			file:    &part{filename: "a.png", contentType: "image/png", data: []byte{0x89}},
			options: `{"minWidth":9000}`,
			wantMsg: model.MsgInvalidOptions,
		},
		{
			name:    "prefix escapes upload dir",
			file:    &part{filename: "a.png", contentType: "image/png", data: valid},
			options: `{"prefix":"../x"}`,
			wantMsg: model.MsgInvalidOptions,
		},
		{
			name:    "prefix with non-ascii",
			file:    &part{filename: "a.png", contentType: "image/png", data: valid},
			options: `{"prefix":"ảnh_"}`,
			wantMsg: model.MsgInvalidOptions,
		},
		{
			name:    "dangerous extension",
			file:    &part{filename: "shell.php", contentType: "image/png", data: []byte("<?php echo 1;")},
			wantMsg: "Dangerous file extension detected",
		},
		{
			name:    "empty file",
			file:    &part{filename: "a.png", contentType: "image/png", data: nil},
			wantMsg: "Empty file uploaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newLocalUploadHandler(t)
			rec := httptest.NewRecorder()

			h.Upload(rec, multipartRequest(t, tt.file, tt.options))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestUploadHandler_MaliciousContentIsAudited(t *testing.T) {
	// ARRANGE
	sink := &recordingSink{}
	logger := logging.Discard()
	h := NewUploadHandler(&stubUploader{err: &model.UploadError{
		Stage:   model.StageValidation,
		Code:    model.CodeMaliciousContent,
		Message: "Malicious content detected",
	}}, logging.NewAuditor(logger, sink), logger)
	req := multipartRequest(t, &part{filename: "x.jpg", contentType: "image/jpeg", data: []byte{0xFF, 0xD8, 0xFF}}, "")
	rec := httptest.NewRecorder()

	// ACT
	h.Upload(rec, req)

	// ASSERT
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{
		model.AuditActionUploadAttempt,
		model.AuditActionSuspicious,
		model.AuditActionUploadFailure,
	}, sink.actions())
}

func TestUploadHandler_ServerStagesMapTo500(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"processing", &model.UploadError{Stage: model.StageProcessing, Code: model.CodeProcessingFailed, Message: model.MsgProcessingFailed}, model.MsgProcessingFailed},
		{"storage", &model.UploadError{Stage: model.StageStorage, Code: model.CodeStorageFailed, Message: model.MsgStorageFailed}, model.MsgStorageFailed},
		{"unexpected", errors.New("boom"), model.MsgUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.Discard()
			h := NewUploadHandler(&stubUploader{err: tt.err}, nil, logger)
			rec := httptest.NewRecorder()

			h.Upload(rec, multipartRequest(t, &part{filename: "a.png", contentType: "image/png", data: []byte{1}}, ""))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestUploadHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newLocalUploadHandler(t)
	rec := httptest.NewRecorder()

	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodGet, "/api/upload", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), model.MsgMethodNotAllowed)
}
