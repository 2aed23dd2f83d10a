package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"

	"travelchat/internal/httputil"
	"travelchat/internal/logging"
	"travelchat/internal/model"
)

// multipart overhead allowed on top of the largest accepted file
const (
	maxMultipartMemory = 32 << 20
	maxUploadBody      = 64 << 20
)

// Uploader is the upload pipeline as seen by the transport layer.
type Uploader interface {
	DefaultOptions() model.UploadOptions
	Upload(ctx context.Context, input model.UploadInput, opts model.UploadOptions) (*model.UploadResult, error)
}

type UploadHandler struct {
	uploads Uploader
	audit   *logging.Auditor
	logger  *log.Logger
}

func NewUploadHandler(uploads Uploader, audit *logging.Auditor, logger *log.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, audit: audit, logger: logger.WithPrefix("UploadHandler")}
}

// Upload handles POST /api/upload
// Accepts a multipart "file" and an optional "options" JSON field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Request body too large")
			return
		}
		httputil.WriteBadRequest(w, model.MsgNoFile)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	opts, err := h.parseOptions(r.FormValue("options"))
	if err != nil {
		h.logger.Info("rejected options", "err", err)
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidOptions, model.MsgInvalidOptions)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, model.MsgNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteBadRequest(w, model.MsgNoFile)
		return
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	h.audit.UploadAttempt(r, header.Filename, int64(len(data)))

	res, err := h.uploads.Upload(r.Context(), model.UploadInput{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, opts)
	if err != nil {
		h.writeUploadError(w, r, header.Filename, err)
		return
	}

	h.audit.UploadSuccess(r, res.Filename, res.Size, map[string]any{
		"originalName":  header.Filename,
		"format":        res.Format,
		"gcsUrl":        res.GCSURL,
		"useGcsPreview": res.UseGCSPreview,
	})
	httputil.WriteJSON(w, http.StatusOK, res)
}

// MethodNotAllowed handles GET /api/upload
func (h *UploadHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, "", model.MsgMethodNotAllowed)
}

func (h *UploadHandler) parseOptions(raw string) (model.UploadOptions, error) {
	opts := h.uploads.DefaultOptions()
	if strings.TrimSpace(raw) == "" {
		return opts, nil
	}

	var override model.UploadOptionsOverride
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return opts, errors.Join(model.ErrInvalidOptions, err)
	}
	merged := opts.Merge(override)
	if err := merged.Validate(); err != nil {
		return opts, err
	}
	return merged, nil
}

func (h *UploadHandler) writeUploadError(w http.ResponseWriter, r *http.Request, filename string, err error) {
	var uerr *model.UploadError
	if !errors.As(err, &uerr) {
		h.logger.Error("upload failed", "filename", filename, "err", err)
		h.audit.UploadFailure(r, filename, model.MsgUploadFailed, nil)
		httputil.WriteInternalError(w, model.MsgUploadFailed)
		return
	}

	if uerr.Code == model.CodeMaliciousContent {
		h.audit.Suspicious(r, "malicious_file_upload", map[string]any{
			"filename": filename,
			"reason":   uerr.Message,
		})
	}
	h.audit.UploadFailure(r, filename, uerr.Message, map[string]any{
		"stage": string(uerr.Stage),
		"code":  uerr.Code,
	})

	if uerr.Stage == model.StageValidation {
		httputil.WriteBadRequestWithCode(w, uerr.Code, uerr.Message)
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, uerr.Code, uerr.Message)
}
