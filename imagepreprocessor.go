// Package imagepreprocessor prepares image datasets for training.
//
// It resizes images to a fixed size (letterboxed on black by default), draws
// labeled bounding boxes on them and runs both steps over whole directories.
// The same operations are exposed as tools to a chat agent.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		imagepreprocessor "github.com/menta2k/image-preprocessor"
//		"github.com/menta2k/image-preprocessor/pkg/types"
//	)
//
//	func main() {
//		p := imagepreprocessor.New()
//
//		res := p.Resize("photo.jpg", "photo_640.jpg", types.Dimensions{Width: 640, Height: 640}, true)
//		if !res.OK() {
//			log.Fatal(res.Err())
//		}
//
//		batch, err := p.ProcessDataset(context.Background(), "./raw_data", "./processed", nil, types.Dimensions{Width: 640, Height: 640})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("processed %d of %d files\n", len(batch.Processed), batch.Total)
//	}
//
// The package consists of these components:
//
// 1. Processing (pkg/processing): single image resize and annotation
// 2. Batch (pkg/batch): directory pipeline with a bounded worker pool
// 3. Annotation (pkg/annotation): box parsing, COCO import and sample boxes
// 4. Agent (pkg/agent): tool calling loop over OpenAI, Gemini or Ollama
package imagepreprocessor

import (
	"context"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/pkg/agent"
	"github.com/menta2k/image-preprocessor/pkg/annotation"
	"github.com/menta2k/image-preprocessor/pkg/batch"
	"github.com/menta2k/image-preprocessor/pkg/processing"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Version of the image preprocessor library
const Version = "1.0.0"

// Preprocessor provides a high-level interface over the preprocessing operations
type Preprocessor struct {
	processor *processing.Processor
	sampler   *annotation.Sampler
	batchOpts batch.Options
	logger    *bolt.Logger
}

var _ agent.Operations = (*Preprocessor)(nil)

// New creates a Preprocessor with default configuration
func New() *Preprocessor {
	return NewWithOptions(processing.DefaultOptions(), batch.DefaultOptions(), nil)
}

// NewWithOptions creates a Preprocessor with custom configuration. A nil logger discards output.
func NewWithOptions(procOpts processing.Options, batchOpts batch.Options, logger *bolt.Logger) *Preprocessor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Preprocessor{
		processor: processing.NewProcessor(procOpts),
		sampler:   annotation.NewRandomSampler(),
		batchOpts: batchOpts,
		logger:    logger,
	}
}

// WithSampler replaces the box sampler, e.g. with a seeded one
func (p *Preprocessor) WithSampler(s *annotation.Sampler) *Preprocessor {
	p.sampler = s
	return p
}

// Resize writes source resized to size into dest
func (p *Preprocessor) Resize(source, dest string, size types.Dimensions, maintainAspect bool) types.Result[types.ResizeResult] {
	return p.processor.Resize(source, dest, size, maintainAspect)
}

// Annotate draws boxes on source and writes the result to dest
func (p *Preprocessor) Annotate(source string, boxes []types.BoundingBox, dest string) types.Result[types.AnnotateResult] {
	return p.processor.Annotate(source, boxes, dest)
}

// ProcessDataset resizes every image of inputDir to size into outputDir and
// draws the listed boxes on the matching files.
func (p *Preprocessor) ProcessDataset(ctx context.Context, inputDir, outputDir string, annotations types.AnnotationSet, size types.Dimensions) (types.BatchResult, error) {
	if err := p.processor.ValidateSize(size); err != nil {
		return types.NewBatchResult(), err
	}
	opts := p.batchOpts
	opts.TargetSize = size
	return batch.NewRunner(p.processor, opts, p.logger).Run(ctx, inputDir, outputDir, annotations)
}

// SampleAnnotations generates count synthetic boxes for an image of the given size
func (p *Preprocessor) SampleAnnotations(count, imageWidth, imageHeight int) ([]types.BoundingBox, error) {
	return p.sampler.Generate(count, imageWidth, imageHeight)
}

// Toolset exposes the preprocessor as agent tools
func (p *Preprocessor) Toolset() (*agent.Toolset, error) {
	return agent.NewToolset(p, p.logger)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
