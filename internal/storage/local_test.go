package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "uploads")
	store := NewLocalStore(dir)

	// ACT: directory does not exist yet
	full, err := store.Save("upload_1_abc.webp", []byte("RIFF"))
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, filepath.Join(dir, "upload_1_abc.webp"), full)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)
	assert.True(t, store.Exists("upload_1_abc.webp"))

	require.NoError(t, store.Delete("upload_1_abc.webp"))
	assert.False(t, store.Exists("upload_1_abc.webp"))

	// deleting again is a no-op
	assert.NoError(t, store.Delete("upload_1_abc.webp"))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Save("../escape.png", []byte("x"))
	assert.Error(t, err)
	assert.Error(t, store.Delete("../escape.png"))
}
