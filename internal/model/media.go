package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultMaxUploadBytes = 25 * 1024 * 1024 // 25MB per upload
	DefaultMinDimension   = 100
	DefaultMaxWidth       = 7680
	DefaultMaxHeight      = 4320
	DefaultOutputSize     = 500
	DefaultQuality        = 85
	DefaultUploadPrefix   = "upload_"
	DefaultUploadDir      = "public/uploads"

	// LocalURLPrefix is where locally stored uploads are served from.
	LocalURLPrefix = "/uploads/"
)

// Supported image content types for upload validation
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeWebP = "image/webp"
)

// Output format tags accepted in UploadOptions.OutputFormat
const (
	FormatWebP     = "webp"
	FormatJPG      = "jpg"
	FormatJPEG     = "jpeg"
	FormatPNG      = "png"
	FormatOriginal = "original"
)

var typeToMIME = map[string]string{
	FormatJPG:  ContentTypeJPEG,
	FormatJPEG: ContentTypeJPEG,
	FormatPNG:  ContentTypePNG,
	FormatWebP: ContentTypeWebP,
}

var outputFormats = map[string]struct{}{
	FormatWebP:     {},
	FormatJPG:      {},
	FormatJPEG:     {},
	FormatPNG:      {},
	FormatOriginal: {},
}

// MIMEForType maps an image type tag (jpg, png, ...) to its canonical MIME string.
func MIMEForType(tag string) (string, bool) {
	mime, ok := typeToMIME[strings.ToLower(tag)]
	return mime, ok
}

// Error codes for HTTP responses
const (
	CodeInvalidFilename   = "INVALID_FILENAME"
	CodeDangerousFile     = "DANGEROUS_EXTENSION"
	CodeInvalidFileType   = "INVALID_FILE_TYPE"
	CodeEmptyFile         = "EMPTY_FILE"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeUnsupportedType   = "UNSUPPORTED_FILE_TYPE"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeInvalidImageType  = "INVALID_IMAGE_TYPE"
	CodeMaliciousContent  = "MALICIOUS_CONTENT"
	CodeInvalidImage      = "INVALID_IMAGE"
	CodeImageTooSmall     = "IMAGE_TOO_SMALL"
	CodeImageTooLarge     = "IMAGE_TOO_LARGE"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeInvalidOptions    = "INVALID_OPTIONS"
	CodeProcessingFailed  = "PROCESSING_FAILED"
	CodeStorageFailed     = "STORAGE_FAILED"
)

// User-facing messages that are not produced by a validation gate.
const (
	MsgNoFile           = "No file uploaded"
	MsgInvalidOptions   = "Invalid upload options"
	MsgProcessingFailed = "Failed to process image"
	MsgStorageFailed    = "Failed to save file for preview or cloud storage"
	MsgUploadFailed     = "Processing failed"
	MsgMethodNotAllowed = "Method not allowed. Use POST to upload files."
)

// Domain errors for media operations
var (
	ErrNoFile            = errors.New("no file uploaded")
	ErrInvalidOptions    = errors.New("invalid upload options")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrInvalidReference  = errors.New("invalid storage reference")
	ErrStoreUnavailable  = errors.New("object store not configured")
)

// UploadOptions configures a single run of the upload pipeline.
// It is built per request from DefaultUploadOptions plus caller overrides and read-only afterwards.
type UploadOptions struct {
	UploadPath     string   `json:"uploadPath"`
	AllowedTypes   []string `json:"allowedTypes"`
	MaxSize        int64    `json:"maxSize"`
	MinWidth       int      `json:"minWidth"`
	MinHeight      int      `json:"minHeight"`
	MaxWidth       int      `json:"maxWidth"`
	MaxHeight      int      `json:"maxHeight"`
	ExactWidth     *int     `json:"exactWidth,omitempty"`
	ExactHeight    *int     `json:"exactHeight,omitempty"`
	OutputSize     int      `json:"outputSize"`
	CropSquare     bool     `json:"cropSquare"`
	Quality        int      `json:"quality"`
	CheckMalicious bool     `json:"checkMalicious"`
	Prefix         string   `json:"prefix"`
	OutputFormat   string   `json:"outputFormat"`
}

// DefaultUploadOptions returns the documented defaults rooted at uploadPath.
func DefaultUploadOptions(uploadPath string) UploadOptions {
	if uploadPath == "" {
		uploadPath = DefaultUploadDir
	}
	return UploadOptions{
		UploadPath:     uploadPath,
		AllowedTypes:   []string{FormatJPG, FormatJPEG, FormatPNG, FormatWebP},
		MaxSize:        DefaultMaxUploadBytes,
		MinWidth:       DefaultMinDimension,
		MinHeight:      DefaultMinDimension,
		MaxWidth:       DefaultMaxWidth,
		MaxHeight:      DefaultMaxHeight,
		OutputSize:     DefaultOutputSize,
		CropSquare:     false,
		Quality:        DefaultQuality,
		CheckMalicious: true,
		Prefix:         DefaultUploadPrefix,
		OutputFormat:   FormatWebP,
	}
}

// UploadOptionsOverride is the caller-supplied partial options object.
// Nil fields keep the defaults. The upload directory is server-controlled and not overridable.
type UploadOptionsOverride struct {
	AllowedTypes   []string `json:"allowedTypes"`
	MaxSize        *int64   `json:"maxSize"`
	MinWidth       *int     `json:"minWidth"`
	MinHeight      *int     `json:"minHeight"`
	MaxWidth       *int     `json:"maxWidth"`
	MaxHeight      *int     `json:"maxHeight"`
	ExactWidth     *int     `json:"exactWidth"`
	ExactHeight    *int     `json:"exactHeight"`
	OutputSize     *int     `json:"outputSize"`
	CropSquare     *bool    `json:"cropSquare"`
	Quality        *int     `json:"quality"`
	CheckMalicious *bool    `json:"checkMalicious"`
	Prefix         *string  `json:"prefix"`
	OutputFormat   *string  `json:"outputFormat"`
}

// Merge returns a copy of o with every field present in p applied on top.
func (o UploadOptions) Merge(p UploadOptionsOverride) UploadOptions {
	out := o
	out.AllowedTypes = append([]string(nil), o.AllowedTypes...)

	if p.AllowedTypes != nil {
		out.AllowedTypes = make([]string, 0, len(p.AllowedTypes))
		for _, t := range p.AllowedTypes {
			out.AllowedTypes = append(out.AllowedTypes, strings.ToLower(strings.TrimSpace(t)))
		}
	}
	if p.MaxSize != nil {
		out.MaxSize = *p.MaxSize
	}
	if p.MinWidth != nil {
		out.MinWidth = *p.MinWidth
	}
	if p.MinHeight != nil {
		out.MinHeight = *p.MinHeight
	}
	if p.MaxWidth != nil {
		out.MaxWidth = *p.MaxWidth
	}
	if p.MaxHeight != nil {
		out.MaxHeight = *p.MaxHeight
	}
	if p.ExactWidth != nil {
		w := *p.ExactWidth
		out.ExactWidth = &w
	}
	if p.ExactHeight != nil {
		h := *p.ExactHeight
		out.ExactHeight = &h
	}
	if p.OutputSize != nil {
		out.OutputSize = *p.OutputSize
	}
	if p.CropSquare != nil {
		out.CropSquare = *p.CropSquare
	}
	if p.Quality != nil {
		out.Quality = *p.Quality
	}
	if p.CheckMalicious != nil {
		out.CheckMalicious = *p.CheckMalicious
	}
	if p.Prefix != nil {
		out.Prefix = *p.Prefix
	}
	if p.OutputFormat != nil {
		out.OutputFormat = strings.ToLower(strings.TrimSpace(*p.OutputFormat))
	}
	return out
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)

// Validate checks the cross-field invariants of merged options.
func (o UploadOptions) Validate() error {
	switch {
	case len(o.AllowedTypes) == 0:
		return fmt.Errorf("%w: allowedTypes is empty", ErrInvalidOptions)
	case o.MaxSize <= 0:
		return fmt.Errorf("%w: maxSize must be positive", ErrInvalidOptions)
	case o.MinWidth < 0 || o.MinHeight < 0:
		return fmt.Errorf("%w: minimum dimensions must not be negative", ErrInvalidOptions)
	case o.MinWidth > o.MaxWidth || o.MinHeight > o.MaxHeight:
		return fmt.Errorf("%w: minimum dimensions exceed maximum", ErrInvalidOptions)
	case o.OutputSize < 0:
		return fmt.Errorf("%w: outputSize must not be negative", ErrInvalidOptions)
	case o.Quality < 1 || o.Quality > 100:
		return fmt.Errorf("%w: quality must be within 1-100", ErrInvalidOptions)
	case !prefixPattern.MatchString(o.Prefix):
		return fmt.Errorf("%w: prefix may only contain letters, digits, '.', '_' and '-'", ErrInvalidOptions)
	}
	if _, ok := outputFormats[o.OutputFormat]; !ok {
		return fmt.Errorf("%w: unknown outputFormat %q", ErrInvalidOptions, o.OutputFormat)
	}
	return nil
}

// ValidationResult is the outcome of a single validation gate.
// Invalid results carry a user-facing Reason; valid results may carry the resolved MIME type.
type ValidationResult struct {
	Valid    bool
	MIMEType string
	Code     string
	Reason   string
}

// Valid returns a passing result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing result with a machine code and user-facing reason.
func Invalid(code, reason string) ValidationResult {
	return ValidationResult{Valid: false, Code: code, Reason: reason}
}

// Dimensions of an image in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UploadResult is the terminal output of the upload pipeline, returned as JSON.
// Field names follow the public API consumed by the chat UI.
type UploadResult struct {
	Success       bool        `json:"success"`
	Error         string      `json:"error,omitempty"`
	Filename      string      `json:"filename,omitempty"`
	Path          string      `json:"path,omitempty"`
	Size          int64       `json:"size,omitempty"`
	Dimensions    *Dimensions `json:"dimensions,omitempty"`
	Type          string      `json:"type,omitempty"`
	Format        string      `json:"format,omitempty"`
	Reprocessed   bool        `json:"reprocessed,omitempty"`
	GCSURL        string      `json:"gcsUrl,omitempty"`
	UseGCSPreview bool        `json:"useGcsPreview"`
}

// FailedUpload builds the failure variant of UploadResult.
func FailedUpload(reason string) *UploadResult {
	return &UploadResult{Success: false, Error: reason}
}

// UploadStage names the pipeline stage an UploadError originated from.
type UploadStage string

const (
	StageValidation UploadStage = "validation"
	StageProcessing UploadStage = "processing"
	StageStorage    UploadStage = "storage"
)

// UploadError is returned by the upload pipeline. Message is safe to show to clients;
// Err holds the internal cause and is never serialized.
type UploadError struct {
	Stage   UploadStage
	Code    string
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// NewValidationError converts a failed ValidationResult into an UploadError.
func NewValidationError(res ValidationResult) *UploadError {
	return &UploadError{Stage: StageValidation, Code: res.Code, Message: res.Reason}
}

// UploadInput is the raw upload as received from the client.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
}
