package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"travelchat/internal/metrics"
	"travelchat/internal/model"
	"travelchat/internal/queue"
)

// UploadService runs Validator -> Transcoder -> StorageService for a single upload.
type UploadService struct {
	validator  *Validator
	transcoder *Transcoder
	storage    *StorageService
	publisher  queue.Publisher
	metrics    *metrics.Recorder
	logger     *log.Logger
	uploadPath string
}

// NewUploadService wires the pipeline. publisher and rec may be nil.
func NewUploadService(
	validator *Validator,
	transcoder *Transcoder,
	storage *StorageService,
	publisher queue.Publisher,
	rec *metrics.Recorder,
	logger *log.Logger,
	uploadPath string,
) *UploadService {
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	return &UploadService{
		validator:  validator,
		transcoder: transcoder,
		storage:    storage,
		publisher:  publisher,
		metrics:    rec,
		logger:     logger.WithPrefix("Upload"),
		uploadPath: uploadPath,
	}
}

// DefaultOptions returns the server defaults for a request.
func (s *UploadService) DefaultOptions() model.UploadOptions {
	return model.DefaultUploadOptions(s.uploadPath)
}

// Upload validates, transcodes and stores input. Failures are *model.UploadError; the first
// failing stage wins and nothing is written before validation passes.
func (s *UploadService) Upload(ctx context.Context, input model.UploadInput, opts model.UploadOptions) (*model.UploadResult, error) {
	start := time.Now()
	opts.UploadPath = s.uploadPath

	result, err := s.run(ctx, input, opts)
	stage := "succeeded"
	var uerr *model.UploadError
	if errors.As(err, &uerr) {
		stage = string(uerr.Stage)
	}
	s.metrics.ObserveUpload(stage, time.Since(start))
	return result, err
}

func (s *UploadService) run(ctx context.Context, input model.UploadInput, opts model.UploadOptions) (*model.UploadResult, error) {
	validated, res := s.validator.Validate(input, opts)
	if !res.Valid {
		s.logger.Info("rejected", "filename", input.Filename, "code", res.Code, "reason", res.Reason)
		return nil, model.NewValidationError(res)
	}

	img, err := s.transcoder.Transcode(input.Data, validated.Extension, opts)
	if err != nil {
		s.logger.Error("transcode failed", "filename", validated.Filename, "err", err)
		return nil, &model.UploadError{
			Stage:   model.StageProcessing,
			Code:    model.CodeProcessingFailed,
			Message: model.MsgProcessingFailed,
			Err:     err,
		}
	}

	stored, err := s.storage.Store(ctx, StoreRequest{
		Data:             img.Data,
		Format:           img.Format,
		ContentType:      img.MIMEType,
		OriginalFilename: validated.Filename,
		Prefix:           opts.Prefix,
		Dir:              opts.UploadPath,
	})
	if err != nil {
		s.metrics.ObserveStorage(OutcomeFailed.String(), 0)
		s.logger.Error("store failed", "filename", validated.Filename, "err", err)
		return nil, &model.UploadError{
			Stage:   model.StageStorage,
			Code:    model.CodeStorageFailed,
			Message: model.MsgStorageFailed,
			Err:     err,
		}
	}
	s.metrics.ObserveStorage(stored.Outcome.String(), int64(len(img.Data)))

	s.logger.Info("upload complete",
		"filename", stored.Filename,
		"in", humanize.Bytes(uint64(len(input.Data))),
		"out", humanize.Bytes(uint64(len(img.Data))),
		"width", img.Width,
		"height", img.Height,
		"outcome", stored.Outcome,
	)

	s.publishStored(ctx, stored)

	return &model.UploadResult{
		Success:       true,
		Filename:      stored.Filename,
		Path:          stored.Path,
		Size:          int64(len(img.Data)),
		Dimensions:    &model.Dimensions{Width: img.Width, Height: img.Height},
		Type:          img.MIMEType,
		Format:        img.Format,
		Reprocessed:   img.Reprocessed,
		GCSURL:        stored.RemoteRef,
		UseGCSPreview: stored.UseRemotePreview(),
	}, nil
}

// publishStored hands the new refs to the retention pipeline. Failures never fail the upload.
func (s *UploadService) publishStored(ctx context.Context, stored *StoredImage) {
	ev := queue.NewUploadStoredEvent(stored.Filename, stored.LocalRef, stored.RemoteRef)
	if len(ev.Refs()) == 0 {
		return
	}
	if _, err := s.publisher.Publish(context.WithoutCancel(ctx), queue.StreamUploads, ev); err != nil {
		s.logger.Warn("publish upload event failed", "filename", stored.Filename, "err", err)
	}
}
