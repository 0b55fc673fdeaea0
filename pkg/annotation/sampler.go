package annotation

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

const (
	minOffset = 50
	edgeGap   = 150
	minSide   = 80
	maxSide   = 150
)

// Labels and Colors are assigned to sampled boxes cyclically by index
var (
	Labels = []string{"object", "target", "item", "entity", "element"}
	Colors = []string{"red", "blue", "green", "yellow", "purple"}
)

// Sampler generates synthetic bounding boxes. It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a sampler whose output is fully determined by seed
func NewSampler(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomSampler returns a sampler seeded from the clock
func NewRandomSampler() *Sampler {
	return NewSampler(uint64(time.Now().UnixNano()))
}

// Generate returns count boxes placed at random inside an image of the given size.
// Geometry is random; label and color follow the box index.
func (s *Sampler) Generate(count, imageWidth, imageHeight int) ([]types.BoundingBox, error) {
	if count < 0 {
		return nil, types.InvalidArgument("count", strconv.Itoa(count), "must not be negative")
	}
	if imageWidth-edgeGap <= minOffset {
		return nil, types.InvalidArgument("image_width", strconv.Itoa(imageWidth), "must be greater than 200")
	}
	if imageHeight-edgeGap <= minOffset {
		return nil, types.InvalidArgument("image_height", strconv.Itoa(imageHeight), "must be greater than 200")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	boxes := make([]types.BoundingBox, count)
	for i := range boxes {
		boxes[i] = types.BoundingBox{
			X:      s.between(minOffset, imageWidth-edgeGap),
			Y:      s.between(minOffset, imageHeight-edgeGap),
			Width:  s.between(minSide, maxSide),
			Height: s.between(minSide, maxSide),
			Label:  Labels[i%len(Labels)],
			Color:  Colors[i%len(Colors)],
		}
	}
	return boxes, nil
}

// between returns a value in [lo, hi)
func (s *Sampler) between(lo, hi int) int {
	return lo + s.rng.IntN(hi-lo)
}
