package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================================
// UploadOptions.Validate
// ==========================================

func TestUploadOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*UploadOptions)
		wantErr bool
	}{
		{"defaults", func(o *UploadOptions) {}, false},
		{"empty prefix", func(o *UploadOptions) { o.Prefix = "" }, false},
		{"custom prefix", func(o *UploadOptions) { o.Prefix = "avatar-2024_v1." }, false},
		{"prefix with traversal", func(o *UploadOptions) { o.Prefix = "../x" }, true},
		{"prefix with slash", func(o *UploadOptions) { o.Prefix = "nested/dir_" }, true},
		{"prefix with space", func(o *UploadOptions) { o.Prefix = "my photo_" }, true},
		{"prefix with multibyte", func(o *UploadOptions) { o.Prefix = "ảnh_" }, true},
		{"no allowed types", func(o *UploadOptions) { o.AllowedTypes = nil }, true},
		{"zero max size", func(o *UploadOptions) { o.MaxSize = 0 }, true},
		{"negative min", func(o *UploadOptions) { o.MinWidth = -1 }, true},
		{"min above max", func(o *UploadOptions) { o.MinHeight = o.MaxHeight + 1 }, true},
		{"negative output size", func(o *UploadOptions) { o.OutputSize = -1 }, true},
		{"quality out of range", func(o *UploadOptions) { o.Quality = 101 }, true},
		{"unknown format", func(o *UploadOptions) { o.OutputFormat = "gif" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			opts := DefaultUploadOptions("")
			tt.mutate(&opts)

			// ACT
			err := opts.Validate()

			// ASSERT
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUploadOptions_MergePrefix(t *testing.T) {
	prefix := "../x"

	merged := DefaultUploadOptions("").Merge(UploadOptionsOverride{Prefix: &prefix})

	assert.Equal(t, "../x", merged.Prefix)
	assert.ErrorIs(t, merged.Validate(), ErrInvalidOptions)
}
