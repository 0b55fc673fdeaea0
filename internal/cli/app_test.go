package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// isolate keeps the user's config file and API keys out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	isolate(t)
	var stdout, stderr bytes.Buffer
	err := New().WithOutput(&stdout, &stderr).ExecuteWithArgs(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{90, 90, 90, 255}), path))
}

func TestApp_Version(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "image-preprocessor version")
}

func TestApp_Help(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"resize", "annotate", "batch", "sample", "inspect", "chat", "config"} {
		assert.Contains(t, out, name)
	}
}

func TestApp_ConfigHidesKeys(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	t.Setenv("DEFAULT_WIDTH", "512")

	var stdout, stderr bytes.Buffer
	err := New().WithOutput(&stdout, &stderr).ExecuteWithArgs(context.Background(), []string{"config"})
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "default_size:")
	assert.Contains(t, out, "width: 512")
	assert.NotContains(t, out, "sk-secret")
}

func TestApp_ConfigJSONAndSave(t *testing.T) {
	out, _, err := run(t, "config", "--json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "batch")

	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	out, _, err = run(t, "config", "--save", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, _, err = run(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "max_workers: 4")
}

func TestApp_BadLogLevel(t *testing.T) {
	_, _, err := run(t, "--log-level", "loud", "version")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestApp_Sample(t *testing.T) {
	first, _, err := run(t, "sample", "--seed", "42", "-n", "2")
	require.NoError(t, err)
	second, _, err := run(t, "sample", "--seed", "42", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var boxes []types.BoundingBox
	require.NoError(t, json.Unmarshal([]byte(first), &boxes))
	require.Len(t, boxes, 2)
	assert.Equal(t, "object", boxes[0].Label)
	assert.Equal(t, "blue", boxes[1].Color)

	_, _, err = run(t, "sample", "--width", "150")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestApp_Resize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writeImage(t, src, 200, 100)
	dest := filepath.Join(dir, "out", "small.png")

	out, _, err := run(t, "resize", src, dest, "--width", "64", "--height", "32")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "success"`)

	img, err := imaging.Open(dest)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	out, _, err = run(t, "resize", filepath.Join(dir, "missing.png"), dest)
	require.Error(t, err)
	assert.Contains(t, out, `"status": "error"`)
}

func TestApp_Annotate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writeImage(t, src, 300, 300)
	dest := filepath.Join(dir, "boxed.png")

	out, _, err := run(t, "annotate", src, dest, "--boxes", `[{"x":10,"y":40,"width":50,"height":50,"label":"cat","color":"blue"}]`)
	require.NoError(t, err)
	assert.Contains(t, out, `"boxes_added": 1`)
	assert.FileExists(t, dest)

	boxesFile := filepath.Join(dir, "boxes.json")
	require.NoError(t, os.WriteFile(boxesFile, []byte(`[{"x":1,"y":1,"width":5,"height":5}]`), 0o644))
	_, _, err = run(t, "annotate", src, dest, "--boxes-file", boxesFile)
	require.NoError(t, err)

	_, _, err = run(t, "annotate", src, dest)
	assert.ErrorContains(t, err, "required")

	_, _, err = run(t, "annotate", src, dest, "--boxes", `[{"x":-1,"y":0,"width":5,"height":5}]`)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestApp_Batch(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "a.jpg"), 120, 80)
	writeImage(t, filepath.Join(in, "b.png"), 80, 120)
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad.png"), []byte("nope"), 0o644))

	annotations := filepath.Join(t.TempDir(), "ann.json")
	require.NoError(t, os.WriteFile(annotations, []byte(`{"a.jpg":[{"x":5,"y":5,"width":20,"height":20}]}`), 0o644))

	stdout, _, err := run(t, "batch", "-i", in, "-o", out, "-a", annotations, "--width", "100", "--height", "100", "--workers", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 files failed")

	var result types.BatchResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Processed, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad.png", result.Failed[0].File)

	_, _, err = run(t, "batch", "-i", filepath.Join(in, "missing"), "-o", out)
	assert.True(t, errors.Is(err, types.ErrIO))
}

func TestApp_Inspect(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "big.png"), 800, 600)
	writeImage(t, filepath.Join(dir, "small.jpg"), 100, 100)

	out, _, err := run(t, "inspect", dir, "--width", "320", "--height", "320")
	require.NoError(t, err)

	var report struct {
		Total    int            `json:"total"`
		Formats  map[string]int `json:"formats"`
		TooSmall []string       `json:"too_small"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, map[string]int{"png": 1, "jpeg": 1}, report.Formats)
	assert.Equal(t, []string{"small.jpg"}, report.TooSmall)
}

func TestApp_InspectMissingDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file.png")
	writeImage(t, blocker, 10, 10)

	for _, dir := range []string{filepath.Join(t.TempDir(), "missing"), blocker} {
		_, _, err := run(t, "inspect", dir)
		require.Error(t, err, dir)
		assert.True(t, errors.Is(err, types.ErrIO), dir)
		assert.True(t, errors.Is(err, os.ErrNotExist), dir)
	}
}

func TestApp_ChatWithoutCredentials(t *testing.T) {
	_, _, err := run(t, "chat", "-m", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	assert.True(t, strings.Contains(err.Error(), "OPENAI_API_KEY"))
}
