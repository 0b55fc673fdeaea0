package annotation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

func TestGenerateBounds(t *testing.T) {
	s := NewSampler(42)

	for _, size := range []types.Dimensions{{Width: 640, Height: 640}, {Width: 201, Height: 201}, {Width: 1920, Height: 300}} {
		boxes, err := s.Generate(200, size.Width, size.Height)
		require.NoError(t, err)
		require.Len(t, boxes, 200)

		for i, b := range boxes {
			assert.GreaterOrEqual(t, b.X, 50, "box %d", i)
			assert.Less(t, b.X, size.Width-150, "box %d", i)
			assert.GreaterOrEqual(t, b.Y, 50, "box %d", i)
			assert.Less(t, b.Y, size.Height-150, "box %d", i)
			assert.GreaterOrEqual(t, b.Width, 80)
			assert.Less(t, b.Width, 150)
			assert.GreaterOrEqual(t, b.Height, 80)
			assert.Less(t, b.Height, 150)
			assert.LessOrEqual(t, b.X+b.Width, size.Width+150)
		}
	}
}

func TestGenerateCyclesLabelsAndColors(t *testing.T) {
	boxes, err := NewSampler(1).Generate(7, 640, 640)
	require.NoError(t, err)

	var labels, colors []string
	for _, b := range boxes {
		labels = append(labels, b.Label)
		colors = append(colors, b.Color)
	}
	assert.Equal(t, []string{"object", "target", "item", "entity", "element", "object", "target"}, labels)
	assert.Equal(t, []string{"red", "blue", "green", "yellow", "purple", "red", "blue"}, colors)
}

func TestGenerateIsReproducibleForSeed(t *testing.T) {
	a, err := NewSampler(7).Generate(10, 640, 480)
	require.NoError(t, err)
	b, err := NewSampler(7).Generate(10, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateZeroCount(t *testing.T) {
	boxes, err := NewRandomSampler().Generate(0, 640, 640)
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestGenerateRejectsDegenerateRange(t *testing.T) {
	tests := []struct {
		name        string
		count, w, h int
		field       string
	}{
		{"negative count", -1, 640, 640, "count"},
		{"narrow image", 3, 200, 640, "image_width"},
		{"short image", 3, 640, 120, "image_height"},
		{"zero size", 1, 0, 0, "image_width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampler(1).Generate(tt.count, tt.w, tt.h)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidArgument))

			var argErr *types.ArgumentError
			require.True(t, errors.As(err, &argErr))
			assert.Equal(t, tt.field, argErr.Field)
		})
	}
}

func TestSamplerConcurrentUse(t *testing.T) {
	s := NewSampler(3)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			boxes, err := s.Generate(50, 640, 640)
			assert.NoError(t, err)
			assert.Len(t, boxes, 50)
		}()
	}
	wg.Wait()
}
