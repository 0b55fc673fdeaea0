package processing

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

var testBlue = color.NRGBA{0, 0, 255, 255}

func TestAnnotateNoBoxesKeepsDimensions(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(testOptions())
	in := writeTestImage(t, dir, "in.png", 120, 90, testBlue)
	out := filepath.Join(dir, "out.png")

	res := p.Annotate(in, nil, out)
	require.True(t, res.OK(), "annotate failed: %v", res.Err())
	assert.Equal(t, 0, res.Value().BoxesAdded)
	assert.Equal(t, out, res.Value().OutputPath)

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())
	assert.True(t, isBlue(img.At(60, 45)))
}

func TestAnnotateDrawsOutline(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(testOptions())
	in := writeTestImage(t, dir, "in.png", 200, 200, testBlue)
	out := filepath.Join(dir, "out.png")

	boxes := []types.BoundingBox{{X: 20, Y: 60, Width: 50, Height: 50, Color: "red"}}
	res := p.Annotate(in, boxes, out)
	require.True(t, res.OK(), "annotate failed: %v", res.Err())
	assert.Equal(t, 1, res.Value().BoxesAdded)

	img, err := imaging.Open(out)
	require.NoError(t, err)

	// stroke of 3 grows inward from each edge
	for _, x := range []int{20, 21, 22, 68, 69, 70} {
		assert.True(t, isRed(img.At(x, 85)), "x=%d should be outline", x)
	}
	for _, y := range []int{60, 61, 62, 108, 109, 110} {
		assert.True(t, isRed(img.At(45, y)), "y=%d should be outline", y)
	}
	assert.True(t, isBlue(img.At(19, 85)))
	assert.True(t, isBlue(img.At(23, 85)))
	assert.True(t, isBlue(img.At(71, 85)))
	assert.True(t, isBlue(img.At(45, 85)), "box must not be filled")
	assert.True(t, isBlue(img.At(45, 111)))
}

func TestAnnotateDefaultColor(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.DefaultColor = "green"
	p := NewProcessor(opts)
	in := writeTestImage(t, dir, "in.png", 100, 100, color.White)
	out := filepath.Join(dir, "out.png")

	res := p.Annotate(in, []types.BoundingBox{{X: 10, Y: 10, Width: 30, Height: 30}}, out)
	require.True(t, res.OK(), "annotate failed: %v", res.Err())

	img, err := imaging.Open(out)
	require.NoError(t, err)
	r, g, b, _ := img.At(10, 20).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(128), g>>8)
	assert.Equal(t, uint32(0), b>>8)
}

func TestAnnotateLabelWithFallbackFont(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.FontPath = filepath.Join(dir, "no-such-font.ttf")
	p := NewProcessor(opts)
	in := writeTestImage(t, dir, "in.png", 200, 200, testBlue)
	out := filepath.Join(dir, "out.png")

	boxes := []types.BoundingBox{{X: 20, Y: 60, Width: 80, Height: 50, Label: "cat", Color: "red"}}
	res := p.Annotate(in, boxes, out)
	require.True(t, res.OK(), "annotate failed: %v", res.Err())

	img, err := imaging.Open(out)
	require.NoError(t, err)

	// label band sits about 20px above the box top
	found := false
	for y := 40; y < 60 && !found; y++ {
		for x := 20; x < 45; x++ {
			if !isBlue(img.At(x, y)) {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "expected label pixels above the box")
	assert.True(t, isBlue(img.At(150, 45)), "label should not extend far right")
}

func TestAnnotateClipsAtCanvasEdge(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(testOptions())
	in := writeTestImage(t, dir, "in.png", 50, 50, color.White)
	out := filepath.Join(dir, "out.png")

	boxes := []types.BoundingBox{
		{X: 0, Y: 0, Width: 10, Height: 10, Label: "top"},
		{X: 30, Y: 30, Width: 100, Height: 100, Label: "overflow", Color: "blue"},
	}
	res := p.Annotate(in, boxes, out)
	require.True(t, res.OK(), "annotate failed: %v", res.Err())
	assert.Equal(t, 2, res.Value().BoxesAdded)
}

func TestAnnotateRejectsInvalidBoxes(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.Palette = []string{"red", "blue"}
	p := NewProcessor(opts)
	in := writeTestImage(t, dir, "in.png", 50, 50, color.White)

	tests := []struct {
		name  string
		box   types.BoundingBox
		field string
	}{
		{"negative x", types.BoundingBox{X: -1, Y: 0, Width: 5, Height: 5}, "boxes[1].x"},
		{"negative y", types.BoundingBox{X: 0, Y: -3, Width: 5, Height: 5}, "boxes[1].y"},
		{"negative width", types.BoundingBox{X: 0, Y: 0, Width: -5, Height: 5}, "boxes[1].width"},
		{"negative height", types.BoundingBox{X: 0, Y: 0, Width: 5, Height: -5}, "boxes[1].height"},
		{"outside palette", types.BoundingBox{X: 0, Y: 0, Width: 5, Height: 5, Color: "green"}, "boxes[1].color"},
		{"unknown color", types.BoundingBox{X: 0, Y: 0, Width: 5, Height: 5, Color: "chartreuse"}, "boxes[1].color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".png")
			boxes := []types.BoundingBox{{X: 1, Y: 1, Width: 5, Height: 5}, tt.box}

			res := p.Annotate(in, boxes, out)
			require.False(t, res.OK())
			assert.True(t, errors.Is(res.Err(), types.ErrInvalidArgument), "got %v", res.Err())

			var argErr *types.ArgumentError
			require.True(t, errors.As(res.Err(), &argErr))
			assert.Equal(t, tt.field, argErr.Field)

			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr), "no output should be written")
		})
	}
}

func TestAnnotateMissingSource(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(testOptions())

	res := p.Annotate(filepath.Join(dir, "missing.png"), nil, filepath.Join(dir, "out.png"))
	require.False(t, res.OK())
	assert.True(t, errors.Is(res.Err(), types.ErrIO))
}

func TestColorByName(t *testing.T) {
	c, ok := ColorByName("Purple")
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{128, 0, 128, 255}, c)

	_, ok = ColorByName("teal")
	assert.False(t, ok)
}

func TestFontLoaderFallsBack(t *testing.T) {
	face := newFontLoader("", 12).Face()
	require.NotNil(t, face)
	assert.Positive(t, face.Metrics().Height.Ceil())
}
