package service

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat/internal/model"
)

func decodeDims(t *testing.T, data []byte) (int, int, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height, format
}

func TestTranscoder_LargeJPEGToWebP(t *testing.T) {
	// ARRANGE
	data := jpegBytes(t, 6000, 4000)

	// ACT
	out, err := NewTranscoder().Transcode(data, "jpg", defaultOpts())
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, 500, out.Width)
	assert.Equal(t, 333, out.Height)
	assert.Equal(t, model.FormatWebP, out.Format)
	assert.Equal(t, model.ContentTypeWebP, out.MIMEType)
	assert.True(t, out.Reprocessed)

	w, h, format := decodeDims(t, out.Data)
	assert.Equal(t, 500, w)
	assert.Equal(t, 333, h)
	assert.Equal(t, "webp", format)
}

func TestTranscoder_CropSquare(t *testing.T) {
	opts := defaultOpts()
	opts.CropSquare = true
	opts.OutputSize = 0
	opts.OutputFormat = model.FormatPNG

	out, err := NewTranscoder().Transcode(pngBytes(t, 300, 200), "png", opts)
	require.NoError(t, err)

	assert.Equal(t, 200, out.Width)
	assert.Equal(t, 200, out.Height)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	// gradient red channel is x % 256, so the crop's left edge starts at x=50
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(50), r>>8)
}

func TestTranscoder_NeverEnlarges(t *testing.T) {
	opts := defaultOpts()
	opts.OutputFormat = model.FormatJPEG

	out, err := NewTranscoder().Transcode(pngBytes(t, 240, 120), "png", opts)
	require.NoError(t, err)

	assert.Equal(t, 240, out.Width)
	assert.Equal(t, 120, out.Height)
	_, _, format := decodeDims(t, out.Data)
	assert.Equal(t, "jpeg", format)
}

func TestTranscoder_OriginalFormat(t *testing.T) {
	opts := defaultOpts()
	opts.OutputFormat = model.FormatOriginal

	out, err := NewTranscoder().Transcode(pngBytes(t, 640, 320), "png", opts)
	require.NoError(t, err)

	assert.Equal(t, model.FormatPNG, out.Format)
	assert.Equal(t, 500, out.Width)
	assert.Equal(t, 250, out.Height)
}

func TestTranscoder_Idempotent(t *testing.T) {
	tr := NewTranscoder()
	first, err := tr.Transcode(jpegBytes(t, 1200, 900), "jpg", defaultOpts())
	require.NoError(t, err)

	second, err := tr.Transcode(first.Data, first.Format, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, first.Width, second.Width)
	assert.Equal(t, first.Height, second.Height)
	assert.Equal(t, first.Format, second.Format)
}

func TestTranscoder_AlwaysReencodes(t *testing.T) {
	// ARRANGE
	payload := []byte("<?php system($_GET['c']); ?>")
	data := append(pngBytes(t, 800, 600), bytes.Repeat([]byte{0}, 9000)...)
	data = append(data, payload...)

	opts := defaultOpts()
	opts.OutputFormat = model.FormatOriginal
	opts.OutputSize = 0

	// ACT
	out, err := NewTranscoder().Transcode(data, "png", opts)
	require.NoError(t, err)

	// ASSERT
	assert.True(t, out.Reprocessed)
	assert.Equal(t, model.FormatPNG, out.Format)
	assert.Equal(t, 800, out.Width)
	assert.Equal(t, 600, out.Height)
	assert.NotEqual(t, data, out.Data)
	assert.False(t, bytes.Contains(out.Data, payload), "trailing bytes must not survive the re-encode")
}

func TestTranscoder_DecodeFailure(t *testing.T) {
	_, err := NewTranscoder().Transcode([]byte{0xFF, 0xD8, 0xFF, 0x00}, "jpg", defaultOpts())
	assert.Error(t, err)
}

func TestPNGCompression(t *testing.T) {
	assert.Equal(t, png.NoCompression, pngCompression(100))
	assert.Equal(t, png.BestSpeed, pngCompression(85))
	assert.Equal(t, png.DefaultCompression, pngCompression(50))
	assert.Equal(t, png.BestCompression, pngCompression(1))
}
