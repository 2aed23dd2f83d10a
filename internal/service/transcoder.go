package service

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"travelchat/internal/model"
)

// Transcoded is the re-encoded image ready for storage.
type Transcoded struct {
	Data        []byte
	Width       int
	Height      int
	Format      string
	MIMEType    string
	Reprocessed bool
}

// Transcoder decodes, crops, downsizes and re-encodes uploads.
// Re-encoding drops everything that is not pixel data.
type Transcoder struct{}

func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Transcode applies opts to data. sourceExt is the validated extension of the upload.
// The output is always a fresh encode; source bytes never reach storage.
func (t *Transcoder) Transcode(data []byte, sourceExt string, opts model.UploadOptions) (*Transcoded, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if opts.CropSquare {
		img = cropCenterSquare(img)
	}
	if opts.OutputSize > 0 {
		img = fitWithin(img, opts.OutputSize)
	}

	format := resolveFormat(opts.OutputFormat, sourceExt)
	mime, ok := model.MIMEForType(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, format, opts.Quality); err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Transcoded{
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		Format:      format,
		MIMEType:    mime,
		Reprocessed: true,
	}, nil
}

func resolveFormat(outputFormat, sourceExt string) string {
	if outputFormat == model.FormatOriginal {
		return strings.ToLower(sourceExt)
	}
	return strings.ToLower(outputFormat)
}

// cropCenterSquare extracts the largest centred square.
func cropCenterSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	size := min(w, h)
	left := (w - size) / 2
	top := (h - size) / 2

	rect := image.Rect(b.Min.X+left, b.Min.Y+top, b.Min.X+left+size, b.Min.Y+top+size)
	return imaging.Crop(img, rect)
}

// fitWithin downsizes so neither side exceeds limit. It never enlarges.
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	// floor(side * limit / longest) in integers, so the longest side lands exactly on limit
	longest := max(w, h)
	nw := max(1, w*limit/longest)
	nh := max(1, h*limit/longest)
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func encode(buf *bytes.Buffer, img image.Image, format string, quality int) error {
	switch format {
	case model.FormatWebP:
		if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return fmt.Errorf("failed to encode webp: %w", err)
		}
	case model.FormatJPG, model.FormatJPEG:
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case model.FormatPNG:
		if err := imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngCompression(quality))); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}
	return nil
}

// pngCompression maps quality onto a 0-9 zlib level, then onto the coarser levels image/png exposes.
func pngCompression(quality int) png.CompressionLevel {
	level := int(math.Floor(9 - float64(quality)/100*9))
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
