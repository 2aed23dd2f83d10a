package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/chai2010/webp"

	"travelchat/internal/storage"
)

// =============================================================================
// IMAGE FIXTURES
// =============================================================================

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	// a flat image keeps large fixtures cheap to encode
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 200, G: 120, B: 40, A: 255}), image.Point{}, draw.Src)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func webpBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, gradient(w, h), &webp.Options{Quality: 80}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	return buf.Bytes()
}

// =============================================================================
// FAKE OBJECT STORE
// =============================================================================

type fakeObjectStore struct {
	mu       sync.Mutex
	putErr   error
	signErr  error
	objects  map[string][]byte
	meta     map[string]map[string]string
	deleted  []string
	putCalls int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeObjectStore) Scheme() string { return storage.SchemeGCS }

func (f *fakeObjectStore) Bucket() string { return "test-bucket" }

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string, metadata map[string]string) (storage.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return storage.Ref{}, f.putErr
	}
	f.objects[key] = data
	f.meta[key] = metadata
	return storage.Ref{Scheme: storage.SchemeGCS, Bucket: "test-bucket", Key: key}, nil
}

func (f *fakeObjectStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://storage.example.com/test-bucket/" + key + "?X-Goog-Signature=abc", nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return errors.New("not found")
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}
