package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp"}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.jpg", true},
		{"A.JPG", true},
		{"b.Png", true},
		{"c.tiff", true},
		{"d.webp", true},
		{"e.txt", false},
		{"f.tif", false},
		{"noext", false},
		{".jpg.bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsImageFile(tt.name, testExts))
		})
	}

	assert.True(t, IsImageFile("x.gif", []string{"gif"}), "extensions without dot are accepted")
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "c.txt", "Z.JPEG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.png", "d.jpg"), []byte("x"), 0o644))

	files, err := ListImageFiles(dir, testExts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z.JPEG", "a.jpg", "b.png"}, files)

	_, err = ListImageFiles(filepath.Join(dir, "missing"), testExts)
	assert.Error(t, err)
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, FileExists(dir))
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "resized_cat.png"), GenerateOutputFilename("in/cat.png", "out", "resized_", "", ""))
	assert.Equal(t, filepath.Join("out", "cat_boxes.webp"), GenerateOutputFilename("cat.png", "out", "", "_boxes", "webp"))
	assert.Equal(t, filepath.Join("out", "cat.jpg"), GenerateOutputFilename("cat", "out", "", "", ""))
}

func TestIntermediateName(t *testing.T) {
	assert.Equal(t, "resized_a.jpg", IntermediateName("a.jpg"))
	assert.Equal(t, "resized_a.jpg", IntermediateName("some/dir/a.jpg"))
}
