package service

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"travelchat/internal/model"
)

const (
	maxFilenameLength = 255
	signatureWindow   = 32
	maliciousWindow   = 8192
)

var dangerousExtensions = map[string]struct{}{
	"php": {}, "php3": {}, "php4": {}, "php5": {}, "pht": {}, "phtml": {}, "shtml": {},
	"asp": {}, "aspx": {}, "jsp": {}, "jspx": {}, "cfm": {}, "cfc": {}, "pl": {},
	"bat": {}, "exe": {}, "com": {}, "scr": {}, "msi": {}, "htaccess": {}, "htpasswd": {},
	"ini": {}, "cfg": {}, "conf": {}, "config": {}, "sql": {}, "sh": {}, "bash": {},
	"cmd": {}, "vbs": {}, "ps1": {},
}

var imageSignatures = map[string][]byte{
	model.FormatJPG:  {0xFF, 0xD8, 0xFF},
	model.FormatJPEG: {0xFF, 0xD8, 0xFF},
	model.FormatPNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	model.FormatWebP: {0x52, 0x49, 0x46, 0x46},
}

var maliciousPatterns = compilePatterns(
	`<\?php`, `<\?=`, `<script`, `<html`, `<body`, `<iframe`,
	`javascript:`, `vbscript:`, `data:`, `eval\s*\(`, `base64_decode\s*\(`,
	`shell_exec\s*\(`, `system\s*\(`, `exec\s*\(`, `passthru\s*\(`,
	`proc_open\s*\(`, `popen\s*\(`, `curl_exec\s*\(`, `file_get_contents\s*\(`,
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

// ValidatedUpload is what the validator learned about an accepted upload.
type ValidatedUpload struct {
	Filename   string
	Extension  string
	MIMEType   string
	Dimensions model.Dimensions
}

// inspection accumulates facts as the gates run.
type inspection struct {
	opts     model.UploadOptions
	input    model.UploadInput
	filename string
	ext      string
	mimeType string
	dims     model.Dimensions
}

type gate func(*inspection) model.ValidationResult

// Validator runs the upload gates in order and stops at the first failure.
// It never touches the filesystem or the network.
type Validator struct {
	gates []gate
}

func NewValidator() *Validator {
	return &Validator{
		gates: []gate{
			checkFilename,
			checkExtension,
			checkSize,
			checkSignature,
			checkMIMEType,
			checkMalicious,
			checkDimensions,
		},
	}
}

// Validate returns the first failing gate's result, or a valid result with the resolved MIME type.
func (v *Validator) Validate(input model.UploadInput, opts model.UploadOptions) (*ValidatedUpload, model.ValidationResult) {
	in := &inspection{opts: opts, input: input}
	for _, g := range v.gates {
		if res := g(in); !res.Valid {
			return nil, res
		}
	}

	res := model.Valid()
	res.MIMEType = in.mimeType
	return &ValidatedUpload{
		Filename:   in.filename,
		Extension:  in.ext,
		MIMEType:   in.mimeType,
		Dimensions: in.dims,
	}, res
}

// SanitizeFilename keeps [A-Za-z0-9._-], strips leading dots and truncates to 255 bytes.
func SanitizeFilename(name string) string {
	clean := unsafeFilenameChars.ReplaceAllString(name, "")
	clean = strings.TrimLeft(clean, ".")
	if len(clean) > maxFilenameLength {
		clean = clean[:maxFilenameLength]
	}
	return clean
}

func checkFilename(in *inspection) model.ValidationResult {
	in.filename = SanitizeFilename(in.input.Filename)
	if in.filename == "" {
		return model.Invalid(model.CodeInvalidFilename, "Invalid filename")
	}
	return model.Valid()
}

func checkExtension(in *inspection) model.ValidationResult {
	in.ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(in.filename), "."))

	if _, bad := dangerousExtensions[in.ext]; bad {
		return model.Invalid(model.CodeDangerousFile, "Dangerous file extension detected")
	}
	for _, allowed := range in.opts.AllowedTypes {
		if allowed == in.ext {
			return model.Valid()
		}
	}
	return model.Invalid(model.CodeInvalidFileType, "Invalid file type. Allowed: "+strings.Join(in.opts.AllowedTypes, ", "))
}

func checkSize(in *inspection) model.ValidationResult {
	size := int64(len(in.input.Data))
	if size == 0 {
		return model.Invalid(model.CodeEmptyFile, "Empty file uploaded")
	}
	if size > in.opts.MaxSize {
		return model.Invalid(model.CodeFileTooLarge, "File too large. Max: "+formatMegabytes(in.opts.MaxSize)+"MB")
	}
	return model.Valid()
}

// formatMegabytes rounds to one decimal and drops a trailing ".0".
func formatMegabytes(n int64) string {
	mb := math.Round(float64(n)/1024/1024*10) / 10
	return strconv.FormatFloat(mb, 'f', -1, 64)
}

func checkSignature(in *inspection) model.ValidationResult {
	expected, ok := imageSignatures[in.ext]
	if !ok {
		return model.Invalid(model.CodeUnsupportedType, "Unsupported file type")
	}

	header := in.input.Data[:min(len(in.input.Data), signatureWindow)]
	if !bytes.HasPrefix(header, expected) {
		return model.Invalid(model.CodeInvalidSignature, "File signature invalid")
	}
	return model.Valid()
}

func checkMIMEType(in *inspection) model.ValidationResult {
	declared := in.input.ContentType
	for _, t := range in.opts.AllowedTypes {
		if mime, ok := model.MIMEForType(t); ok && mime == declared {
			in.mimeType = mime
			return model.Valid()
		}
	}
	return model.Invalid(model.CodeInvalidImageType, "Invalid image type: "+declared)
}

// checkMalicious is a heuristic over the first 8 KiB. It does not catch payloads hidden deeper in the file.
func checkMalicious(in *inspection) model.ValidationResult {
	if !in.opts.CheckMalicious {
		return model.Valid()
	}

	window := in.input.Data[:min(len(in.input.Data), maliciousWindow)]
	for _, p := range maliciousPatterns {
		if p.Match(window) {
			return model.Invalid(model.CodeMaliciousContent, "Malicious content detected")
		}
	}
	return model.Valid()
}

func checkDimensions(in *inspection) model.ValidationResult {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.input.Data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Invalid(model.CodeInvalidImage, "Not a valid image file")
	}
	in.dims = model.Dimensions{Width: cfg.Width, Height: cfg.Height}

	opts := in.opts
	switch {
	case cfg.Width < opts.MinWidth || cfg.Height < opts.MinHeight:
		return model.Invalid(model.CodeImageTooSmall, fmt.Sprintf("Image too small. Minimum: %dx%dpx", opts.MinWidth, opts.MinHeight))
	case cfg.Width > opts.MaxWidth || cfg.Height > opts.MaxHeight:
		return model.Invalid(model.CodeImageTooLarge, fmt.Sprintf("Image too large. Maximum: %dx%dpx", opts.MaxWidth, opts.MaxHeight))
	case opts.ExactWidth != nil && cfg.Width != *opts.ExactWidth:
		return model.Invalid(model.CodeDimensionMismatch, fmt.Sprintf("Image width must be exactly %dpx", *opts.ExactWidth))
	case opts.ExactHeight != nil && cfg.Height != *opts.ExactHeight:
		return model.Invalid(model.CodeDimensionMismatch, fmt.Sprintf("Image height must be exactly %dpx", *opts.ExactHeight))
	}
	return model.Valid()
}
